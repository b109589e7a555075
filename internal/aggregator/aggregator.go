// Package aggregator collects market listings across cursor-linked pages,
// applying filters, bounds, and a fixed-backoff retry policy.
package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
	"github.com/lokatools/marketmirror/internal/metrics"
)

// Config controls aggregation behavior.
type Config struct {
	// PageSize rewrites the size parameter of every next link so cursor
	// chains coalesce into fewer, larger requests.
	PageSize int
	// MaxPages and MaxItems cap fully unfiltered crawls; filtered queries
	// are assumed bounded and run to completion.
	MaxPages int
	MaxItems int
	// MaxRetries bounds consecutive failed fetches of the same URL.
	MaxRetries int
	// RetryDelay is the fixed backoff between retries.
	RetryDelay time.Duration
}

// Aggregator walks a listing cursor chain and accumulates matching items.
// It is stateless per call; every Collect returns a fresh list.
type Aggregator struct {
	source market.ListingSource
	sleep  market.Sleeper
	cfg    Config
	logger *zap.Logger
}

// New constructs an Aggregator.
func New(source market.ListingSource, sleep market.Sleeper, cfg Config, logger *zap.Logger) *Aggregator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 50
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 5000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		source: source,
		sleep:  sleep,
		cfg:    cfg,
		logger: logger,
	}
}

// Collect fetches every listing page reachable from the query's start
// endpoint and returns the matching items in upstream page order. On a
// transient failure it retries the same URL after a fixed backoff; once
// MaxRetries consecutive attempts fail the whole operation aborts with
// market.ErrAborted and no partial results.
func (a *Aggregator) Collect(ctx context.Context, q market.ListingQuery) ([]market.ListedItem, error) {
	if !q.Kind.Valid() {
		return nil, fmt.Errorf("unknown listing kind %q", q.Kind)
	}
	var (
		items      []market.ListedItem
		pages      int
		retries    int
		nextURL    = a.source.StartURL(q)
		wantUpper  = market.NormalizeMaterial(q.Material)
		unfiltered = !q.Filtered()
		seen       = map[string]bool{}
	)

	for nextURL != "" {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregation canceled: %w", err)
		}
		if seen[nextURL] {
			// A misbehaving upstream can hand back a link it already served;
			// following it again would loop forever.
			a.logger.Warn("next link repeats an already fetched page, stopping", zap.String("url", nextURL))
			break
		}

		page, err := a.source.ListingPage(ctx, nextURL)
		if err != nil {
			metrics.ObserveListingPage(string(q.Kind), "error")
			retries++
			if retries >= a.cfg.MaxRetries {
				a.logger.Error("retry budget exhausted, aborting",
					zap.String("url", nextURL),
					zap.Int("retries", retries),
					zap.Error(err),
				)
				return nil, fmt.Errorf("%w after %d retries: %v", market.ErrAborted, retries, err)
			}
			metrics.IncAggregationRetry()
			a.logger.Warn("page fetch failed, retrying",
				zap.String("url", nextURL),
				zap.Int("retry", retries),
				zap.Int("max_retries", a.cfg.MaxRetries),
				zap.Error(err),
			)
			if serr := a.sleep.Sleep(ctx, a.cfg.RetryDelay); serr != nil {
				return nil, fmt.Errorf("aggregation canceled: %w", serr)
			}
			continue
		}
		metrics.ObserveListingPage(string(q.Kind), "ok")
		retries = 0
		seen[nextURL] = true
		pages++

		for _, item := range page.Items {
			if wantUpper != "" && market.NormalizeMaterial(item.Material) != wantUpper {
				continue
			}
			items = append(items, item)
		}

		if unfiltered && pages >= a.cfg.MaxPages {
			a.logger.Warn("page ceiling reached", zap.Int("pages", pages))
			break
		}
		if unfiltered && len(items) >= a.cfg.MaxItems {
			a.logger.Warn("item ceiling reached", zap.Int("items", len(items)))
			break
		}

		nextURL = a.rewritePageSize(page.Next)
	}

	a.logger.Info("aggregation complete",
		zap.String("kind", string(q.Kind)),
		zap.Int("pages", pages),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// rewritePageSize forces the next link's size parameter to the configured
// page size before following it.
func (a *Aggregator) rewritePageSize(next string) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		a.logger.Warn("unparseable next link, stopping chain", zap.String("url", next), zap.Error(err))
		return ""
	}
	q := u.Query()
	q.Set("size", strconv.Itoa(a.cfg.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}
