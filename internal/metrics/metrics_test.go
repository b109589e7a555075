package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlPagesTotal.WithLabelValues("ok"))
	ObserveCrawlPage("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(crawlPagesTotal.WithLabelValues("ok")))

	before = testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	ObserveCacheLookup("hit")
	assert.Equal(t, before+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")))

	before = testutil.ToFloat64(listingPagesTotal.WithLabelValues("market_sales", "error"))
	ObserveListingPage("market_sales", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(listingPagesTotal.WithLabelValues("market_sales", "error")))

	before = testutil.ToFloat64(aggregationRetriesTotal)
	IncAggregationRetry()
	assert.Equal(t, before+1, testutil.ToFloat64(aggregationRetriesTotal))
}

func TestAddNewRecordsIgnoresNonPositive(t *testing.T) {
	Init()

	before := testutil.ToFloat64(crawlRecordsNewTotal)
	AddNewRecords(0)
	AddNewRecords(-3)
	assert.Equal(t, before, testutil.ToFloat64(crawlRecordsNewTotal))

	AddNewRecords(5)
	assert.Equal(t, before+5, testutil.ToFloat64(crawlRecordsNewTotal))
}

func TestSetCacheRecords(t *testing.T) {
	Init()
	SetCacheRecords(1234)
	assert.Equal(t, float64(1234), testutil.ToFloat64(cacheRecords))
}

func TestObserveHTTPRequest(t *testing.T) {
	Init()

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	ObserveHTTPRequest(http.MethodGet, "/v1/records/{name}", 200, 30*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")))
}

func TestHandlerServesExposition(t *testing.T) {
	Init()
	SetCacheRecords(7)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mirror_cache_records")
}
