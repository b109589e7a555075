// Package client implements the HTTP client for the upstream HAL-style
// catalog API: paginated record pages, exact-name search, by-ID fetches,
// and the listing search endpoints the aggregator walks.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
	"github.com/lokatools/marketmirror/internal/pace"
)

// Config captures client behavior knobs.
type Config struct {
	BaseURL         string
	UserAgent       string
	Timeout         time.Duration
	ListingPageSize int
}

// Client talks to the upstream API. All requests pass through the pacer.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *pace.Limiter
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, limiter *pace.Limiter, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ListingPageSize <= 0 {
		cfg.ListingPageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// halEnvelope is the shape shared by every upstream collection page.
type halEnvelope struct {
	Embedded map[string]json.RawMessage `json:"_embedded"`
	Page     market.PageInfo            `json:"page"`
	Links    map[string]halLink         `json:"_links"`
}

type halLink struct {
	Href string `json:"href"`
}

// listingItem is the wire shape of one market listing.
type listingItem struct {
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	OwnerID  string  `json:"ownerId"`
}

// RecordPage fetches one page of the player collection.
func (c *Client) RecordPage(ctx context.Context, page, size int) (market.RecordPage, error) {
	u := c.endpoint("/players")
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, u.String())
	if err != nil {
		return market.RecordPage{}, err
	}
	var env halEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return market.RecordPage{}, fmt.Errorf("decode record page: %w", err)
	}
	records, err := decodeRecords(env.Embedded, "players")
	if err != nil {
		return market.RecordPage{}, err
	}
	return market.RecordPage{Records: records, Page: env.Page}, nil
}

// FindRecordByName performs the upstream exact-name search. A well-formed
// result must carry an ID; anything else is market.ErrNotFound.
func (c *Client) FindRecordByName(ctx context.Context, name string) (market.Record, error) {
	u := c.endpoint("/players/search/findByName")
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return c.fetchRecord(ctx, u.String())
}

// RecordByID fetches a single record by its opaque ID.
func (c *Client) RecordByID(ctx context.Context, id string) (market.Record, error) {
	u := c.endpoint("/players/" + url.PathEscape(id))
	return c.fetchRecord(ctx, u.String())
}

func (c *Client) fetchRecord(ctx context.Context, rawURL string) (market.Record, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return market.Record{}, err
	}
	var rec market.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return market.Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.ID == "" {
		return market.Record{}, market.ErrNotFound
	}
	return rec, nil
}

// StartURL builds the first page URL for a listing query. Endpoint
// precedence: owner-scoped search, then type-scoped search, then the
// unfiltered collection.
func (c *Client) StartURL(q market.ListingQuery) string {
	size := strconv.Itoa(c.cfg.ListingPageSize)
	switch {
	case q.OwnerID != "":
		u := c.endpoint("/" + string(q.Kind) + "/search/findByOwnerId")
		vals := u.Query()
		vals.Set("id", q.OwnerID)
		vals.Set("size", size)
		u.RawQuery = vals.Encode()
		return u.String()
	case q.Material != "":
		u := c.endpoint("/" + string(q.Kind) + "/search/findByType")
		vals := u.Query()
		vals.Set("type", market.NormalizeMaterial(q.Material))
		vals.Set("size", size)
		u.RawQuery = vals.Encode()
		return u.String()
	default:
		u := c.endpoint("/" + string(q.Kind))
		vals := u.Query()
		vals.Set("size", size)
		u.RawQuery = vals.Encode()
		return u.String()
	}
}

// ListingPage fetches one listing page by URL. Items may arrive under either
// of the two embedded aliases; absence of both is an empty page, not an
// error. The next link, if any, is resolved to an absolute URL.
func (c *Client) ListingPage(ctx context.Context, pageURL string) (market.ListingPage, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return market.ListingPage{}, err
	}
	var env halEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return market.ListingPage{}, fmt.Errorf("decode listing page: %w", err)
	}

	items := decodeListings(env.Embedded, market.ListingEmbeddedKeys())
	page := market.ListingPage{Items: items, Page: env.Page}

	if next, ok := env.Links["next"]; ok && next.Href != "" {
		resolved, err := c.resolve(next.Href)
		if err != nil {
			c.logger.Warn("unparseable next link, stopping chain", zap.String("href", next.Href), zap.Error(err))
		} else {
			page.Next = resolved
		}
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &market.StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.base
	u.Path = joinPath(c.base.Path, path)
	return &u
}

func (c *Client) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

func joinPath(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

func decodeRecords(embedded map[string]json.RawMessage, keys ...string) ([]market.Record, error) {
	for _, key := range keys {
		raw, ok := embedded[key]
		if !ok {
			continue
		}
		var records []market.Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode embedded %q: %w", key, err)
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}

func decodeListings(embedded map[string]json.RawMessage, keys []string) []market.ListedItem {
	for _, key := range keys {
		raw, ok := embedded[key]
		if !ok {
			continue
		}
		var wire []listingItem
		if err := json.Unmarshal(raw, &wire); err != nil {
			continue
		}
		if len(wire) == 0 {
			continue
		}
		items := make([]market.ListedItem, 0, len(wire))
		for _, it := range wire {
			items = append(items, normalizeItem(it))
		}
		return items
	}
	return nil
}

func normalizeItem(it listingItem) market.ListedItem {
	price := int(math.Round(it.Price))
	if price < 0 {
		price = 0
	}
	quantity := it.Quantity
	if quantity < 0 {
		quantity = 0
	}
	material := it.Type
	if material == "" {
		material = "Unknown"
	}
	return market.ListedItem{
		Material: material,
		Price:    price,
		Quantity: quantity,
		OwnerID:  it.OwnerID,
	}
}
