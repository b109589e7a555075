package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/config"
	"github.com/lokatools/marketmirror/internal/crawler"
	"github.com/lokatools/marketmirror/internal/market"
	"github.com/lokatools/marketmirror/internal/store"
)

type fakeResolver struct {
	records map[string]market.Record
	names   map[string]string
}

func (f *fakeResolver) Resolve(_ context.Context, name string) (market.Record, bool) {
	rec, ok := f.records[strings.ToLower(name)]
	return rec, ok
}

func (f *fakeResolver) ResolveNames(_ context.Context, ownerIDs []string) map[string]string {
	out := map[string]string{}
	for _, id := range ownerIDs {
		if name, ok := f.names[id]; ok {
			out[id] = name
		}
	}
	return out
}

type fakeCollector struct {
	items []market.ListedItem
	err   error
	gotQ  market.ListingQuery
}

func (f *fakeCollector) Collect(_ context.Context, q market.ListingQuery) ([]market.ListedItem, error) {
	f.gotQ = q
	return f.items, f.err
}

type fakeRunner struct {
	block chan struct{}
	runs  atomic.Int32
}

func (f *fakeRunner) RunCycle(context.Context) (crawler.Stats, error) {
	f.runs.Add(1)
	if f.block != nil {
		<-f.block
	}
	return crawler.Stats{}, nil
}

type serverFixture struct {
	server    *Server
	resolver  *fakeResolver
	collector *fakeCollector
	runner    *fakeRunner
	links     *store.IdentityLinkStore
}

func newFixture(t *testing.T, cfg config.Config) *serverFixture {
	t.Helper()
	dir := t.TempDir()
	records, err := store.NewRecordStore(filepath.Join(dir, "cache.json"), zap.NewNop())
	require.NoError(t, err)
	links, err := store.NewIdentityLinkStore(filepath.Join(dir, "links.json"), zap.NewNop())
	require.NoError(t, err)

	res := &fakeResolver{
		records: map[string]market.Record{
			"steve": {ID: "1", Name: "Steve"},
		},
		names: map[string]string{"o1": "Steve"},
	}
	col := &fakeCollector{}
	run := &fakeRunner{}
	s := NewServer(res, col, run, records, links, cfg, zap.NewNop())
	return &serverFixture{server: s, resolver: res, collector: col, runner: run, links: links}
}

func (f *serverFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, config.Config{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, config.Config{})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "").Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	f := newFixture(t, cfg)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/healthz", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz?api_key=sekrit", "").Code)
}

func TestGetRecord(t *testing.T) {
	f := newFixture(t, config.Config{})

	rec := f.do(t, http.MethodGet, "/v1/records/steve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got market.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "1", got.ID)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/records/nobody", "").Code)
}

func TestGetListings(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.collector.items = []market.ListedItem{
		{Material: "DIAMOND", Price: 30, Quantity: 1, OwnerID: "o1"},
		{Material: "DIAMOND", Price: 10, Quantity: 2, OwnerID: "o2"},
	}

	rec := f.do(t, http.MethodGet, "/v1/listings/market_sales?item=diamond&sort=price_asc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, market.KindSales, resp.Kind)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 10, resp.Items[0].Price, "price_asc puts the cheapest first")
	assert.Equal(t, "Steve", resp.Items[1].OwnerName, "known owners are annotated")
	assert.Empty(t, resp.Items[0].OwnerName, "unknown owners stay blank")

	assert.Equal(t, "diamond", f.collector.gotQ.Material)
	assert.Equal(t, market.KindSales, f.collector.gotQ.Kind)
}

func TestGetListingsOwnerFilter(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.collector.items = []market.ListedItem{
		{Material: "STONE", Price: 5, Quantity: 64, OwnerID: "1"},
	}

	rec := f.do(t, http.MethodGet, "/v1/listings/market_buyorders?owner=steve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", f.collector.gotQ.OwnerID, "owner names resolve to IDs before collection")

	var resp listingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Steve", resp.Items[0].OwnerName)
}

func TestGetListingsUnknownOwner(t *testing.T) {
	f := newFixture(t, config.Config{})
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/listings/market_sales?owner=nobody", "").Code)
}

func TestGetListingsUnknownKind(t *testing.T) {
	f := newFixture(t, config.Config{})
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/listings/market_rentals", "").Code)
}

func TestGetListingsUpstreamAborted(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.collector.err = fmt.Errorf("%w after 3 retries", market.ErrAborted)
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodGet, "/v1/listings/market_sales", "").Code)
}

func TestTriggerCrawlSingleFlight(t *testing.T) {
	f := newFixture(t, config.Config{})
	f.runner.block = make(chan struct{})

	assert.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/v1/crawl", "").Code)

	// While the first cycle is still in flight, a second trigger is refused.
	require.Eventually(t, func() bool { return f.runner.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/crawl", "").Code)

	close(f.runner.block)
	require.Eventually(t, func() bool {
		return f.do(t, http.MethodPost, "/v1/crawl", "").Code == http.StatusAccepted
	}, time.Second, 5*time.Millisecond)
}

func TestLinkLifecycle(t *testing.T) {
	f := newFixture(t, config.Config{})

	body := `{"external_identity": "discord:42", "record_name": "Steve"}`
	rec := f.do(t, http.MethodPost, "/v1/links/", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/links/discord:42", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Relinking the same identity conflicts.
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/v1/links/", body).Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/v1/links/discord:42", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/links/discord:42", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/v1/links/discord:42", "").Code)
}

func TestCreateLinkValidation(t *testing.T) {
	f := newFixture(t, config.Config{})

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/links/", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/links/", `not json`).Code)

	body := `{"external_identity": "discord:42", "record_name": "nobody"}`
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/v1/links/", body).Code)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, config.Config{})
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
