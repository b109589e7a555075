package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, UserAgent: "test-agent", ListingPageSize: 100}, nil, zap.NewNop())
	require.NoError(t, err)
	return c, srv
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil, zap.NewNop())
	require.Error(t, err)
}

func TestRecordPage(t *testing.T) {
	var gotPath, gotQuery, gotAgent string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{
			"_embedded": {"players": [
				{"id": "1", "name": "Steve", "balance": 250},
				{"id": "2", "name": "Alex"}
			]},
			"page": {"size": 20, "totalElements": 42, "totalPages": 3, "number": 0}
		}`)
	}))

	page, err := c.RecordPage(context.Background(), 0, 20)
	require.NoError(t, err)

	assert.Equal(t, "/players", gotPath)
	assert.Contains(t, gotQuery, "page=0")
	assert.Contains(t, gotQuery, "size=20")
	assert.Equal(t, "test-agent", gotAgent)

	require.Len(t, page.Records, 2)
	assert.Equal(t, "Steve", page.Records[0].Name)
	assert.Contains(t, page.Records[0].Attrs, "balance", "unknown fields ride along")
	assert.Equal(t, 3, page.Page.TotalPages)
	assert.Equal(t, 42, page.Page.TotalElements)
}

func TestFindRecordByName(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/players/search/findByName", r.URL.Path)
		assert.Equal(t, "Steve", r.URL.Query().Get("name"))
		fmt.Fprint(w, `{"id": "1", "name": "Steve"}`)
	}))

	rec, err := c.FindRecordByName(context.Background(), "Steve")
	require.NoError(t, err)
	assert.Equal(t, "1", rec.ID)
}

func TestFetchRecordWithoutIDIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name": "ghost"}`)
	}))

	_, err := c.RecordByID(context.Background(), "whatever")
	require.ErrorIs(t, err, market.ErrNotFound)
}

func TestGetNon200ReturnsStatusError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.RecordByID(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, market.IsRateLimited(err))
	assert.True(t, market.IsTransient(err))
}

func TestStartURLPrecedence(t *testing.T) {
	c, srv := newTestClient(t, http.NewServeMux())

	t.Run("owner beats material", func(t *testing.T) {
		u := c.StartURL(market.ListingQuery{Kind: market.KindSales, OwnerID: "o1", Material: "diamond"})
		assert.Equal(t, srv.URL+"/market_sales/search/findByOwnerId?id=o1&size=100", u)
	})

	t.Run("material", func(t *testing.T) {
		u := c.StartURL(market.ListingQuery{Kind: market.KindBuyOrders, Material: "diamond"})
		assert.Equal(t, srv.URL+"/market_buyorders/search/findByType?size=100&type=DIAMOND", u)
	})

	t.Run("unfiltered", func(t *testing.T) {
		u := c.StartURL(market.ListingQuery{Kind: market.KindSales})
		assert.Equal(t, srv.URL+"/market_sales?size=100", u)
	})
}

func TestListingPageAcceptsEitherEmbeddedAlias(t *testing.T) {
	for _, alias := range []string{"market_sales", "market_buyorders"} {
		t.Run(alias, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, `{
					"_embedded": {%q: [
						{"type": "DIAMOND", "price": 99.6, "quantity": 4, "ownerId": "o1"}
					]},
					"page": {"size": 100, "totalElements": 1, "totalPages": 1, "number": 0}
				}`, alias)
			}))

			page, err := c.ListingPage(context.Background(), c.StartURL(market.ListingQuery{Kind: market.KindSales}))
			require.NoError(t, err)
			require.Len(t, page.Items, 1)
			assert.Equal(t, "DIAMOND", page.Items[0].Material)
			assert.Equal(t, 100, page.Items[0].Price, "prices round to whole units")
			assert.Equal(t, "o1", page.Items[0].OwnerID)
		})
	}
}

func TestListingPageMissingEmbeddedIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"page": {"size": 100, "totalElements": 0, "totalPages": 0, "number": 0}}`)
	}))

	page, err := c.ListingPage(context.Background(), c.StartURL(market.ListingQuery{Kind: market.KindSales}))
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.Next)
}

func TestListingPageResolvesRelativeNextLink(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"_embedded": {"market_sales": []},
			"_links": {"next": {"href": "/market_sales?page=1&size=100"}},
			"page": {"size": 100, "totalElements": 150, "totalPages": 2, "number": 0}
		}`)
	}))

	page, err := c.ListingPage(context.Background(), c.StartURL(market.ListingQuery{Kind: market.KindSales}))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/market_sales?page=1&size=100", page.Next)
}

func TestNormalizeItemDefensiveDefaults(t *testing.T) {
	got := normalizeItem(listingItem{Type: "", Price: -3.2, Quantity: -1, OwnerID: "o1"})
	assert.Equal(t, "Unknown", got.Material)
	assert.Equal(t, 0, got.Price)
	assert.Equal(t, 0, got.Quantity)
}
