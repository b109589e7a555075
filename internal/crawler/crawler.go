// Package crawler implements the incremental catalog crawler that keeps the
// record cache converging toward the upstream collection without re-fetching
// everything every cycle.
package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
	"github.com/lokatools/marketmirror/internal/metrics"
	"github.com/lokatools/marketmirror/internal/store"
)

// Config controls crawl cycle behavior.
type Config struct {
	// PageSize is the record count requested per catalog page.
	PageSize int
	// MaxPagesPerCycle bounds a single cycle's sweep so one invocation
	// cannot run unbounded; repeated cycles converge for large catalogs.
	MaxPagesPerCycle int
	// PageDelay is the courtesy pause between page fetches.
	PageDelay time.Duration
	// ErrorDelay is the longer pause after a failed page fetch.
	ErrorDelay time.Duration
}

// Stats summarizes one crawl cycle.
type Stats struct {
	TotalPages    int `json:"total_pages"`
	TotalElements int `json:"total_elements"`
	PagesChecked  int `json:"pages_checked"`
	NewRecords    int `json:"new_records"`
	CachedRecords int `json:"cached_records"`
}

// Crawler walks the upstream player collection and merges each page into
// the record store, newest pages first.
type Crawler struct {
	api    market.CatalogAPI
	store  *store.RecordStore
	clock  market.Clock
	sleep  market.Sleeper
	cfg    Config
	logger *zap.Logger
}

// New constructs a Crawler.
func New(
	api market.CatalogAPI,
	recordStore *store.RecordStore,
	clock market.Clock,
	sleep market.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Crawler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxPagesPerCycle <= 0 {
		cfg.MaxPagesPerCycle = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		api:    api,
		store:  recordStore,
		clock:  clock,
		sleep:  sleep,
		cfg:    cfg,
		logger: logger,
	}
}

// RunCycle performs one bounded crawl cycle: bootstrap page 0 for totals,
// resume from the high-water mark (or restart after a completed sweep),
// re-check page 0 for freshness when resuming, then sweep forward merging
// every record. The store is persisted at the end regardless of partial
// page failures.
func (c *Crawler) RunCycle(ctx context.Context) (Stats, error) {
	first, err := c.api.RecordPage(ctx, 0, c.cfg.PageSize)
	if err != nil {
		metrics.ObserveCrawlPage("error")
		return Stats{}, fmt.Errorf("bootstrap page 0: %w", err)
	}
	metrics.ObserveCrawlPage("ok")

	stats := Stats{
		TotalPages:    first.Page.TotalPages,
		TotalElements: first.Page.TotalElements,
	}
	c.logger.Info("crawl cycle started",
		zap.Int("total_pages", stats.TotalPages),
		zap.Int("total_elements", stats.TotalElements),
	)

	// The newest entries live on the low page numbers, so page 0 is always
	// merged immediately.
	stats.NewRecords += c.merge(first.Records)

	startPage := c.store.HighestPage()
	if startPage >= stats.TotalPages {
		// A prior cycle finished a full sweep (or the collection shrank);
		// start over from the newest pages.
		startPage = 0
	}

	if startPage > 0 {
		// Dedicated freshness pass: entries added since the bootstrap fetch
		// land on page 0 in high-churn collections.
		if fresh, err := c.api.RecordPage(ctx, 0, c.cfg.PageSize); err != nil {
			metrics.ObserveCrawlPage("error")
			c.logger.Warn("freshness pass failed", zap.Error(err))
		} else {
			metrics.ObserveCrawlPage("ok")
			stats.NewRecords += c.merge(fresh.Records)
			if serr := c.sleep.Sleep(ctx, c.cfg.PageDelay); serr != nil {
				return c.finishCycle(stats, serr)
			}
		}
	}

	endPage := stats.TotalPages
	if limit := startPage + c.cfg.MaxPagesPerCycle; limit < endPage {
		endPage = limit
	}

	for page := startPage; page < endPage; page++ {
		if ctx.Err() != nil {
			return c.finishCycle(stats, ctx.Err())
		}
		result, err := c.api.RecordPage(ctx, page, c.cfg.PageSize)
		if err != nil {
			// A failed page does not abort the cycle; wait longer and move on.
			metrics.ObserveCrawlPage("error")
			c.logger.Warn("page fetch failed", zap.Int("page", page), zap.Error(err))
			if serr := c.sleep.Sleep(ctx, c.cfg.ErrorDelay); serr != nil {
				return c.finishCycle(stats, serr)
			}
			continue
		}
		metrics.ObserveCrawlPage("ok")

		newInPage := c.merge(result.Records)
		stats.PagesChecked++
		stats.NewRecords += newInPage
		c.store.AdvanceHighestPage(page + 1)
		c.logger.Debug("page merged",
			zap.Int("page", page),
			zap.Int("new_records", newInPage),
		)

		if serr := c.sleep.Sleep(ctx, c.cfg.PageDelay); serr != nil {
			return c.finishCycle(stats, serr)
		}
	}

	if c.store.HighestPage() >= stats.TotalPages {
		// Full sweep complete: clamp the mark to the current total so the
		// next cycle's resume check passes and page 0 is re-prioritized.
		c.store.SetHighestPage(stats.TotalPages)
		c.logger.Info("full sweep complete, next cycle restarts from page 0")
	}

	return c.finishCycle(stats, nil)
}

// finishCycle stamps and persists the store; it runs on every exit path so
// partial progress survives interruptions.
func (c *Crawler) finishCycle(stats Stats, cause error) (Stats, error) {
	c.store.SetLastUpdate(c.clock.Now())
	stats.CachedRecords = c.store.Len()
	metrics.AddNewRecords(stats.NewRecords)
	metrics.SetCacheRecords(stats.CachedRecords)

	if err := c.store.Save(); err != nil {
		// Persistence failure degrades to in-memory state; it never halts
		// the process.
		c.logger.Error("cache save failed", zap.Error(err))
	}
	c.logger.Info("crawl cycle finished",
		zap.Int("pages_checked", stats.PagesChecked),
		zap.Int("new_records", stats.NewRecords),
		zap.Int("cached_records", stats.CachedRecords),
	)
	if cause != nil {
		return stats, fmt.Errorf("cycle interrupted: %w", cause)
	}
	return stats, nil
}

func (c *Crawler) merge(records []market.Record) int {
	created := 0
	for _, rec := range records {
		if c.store.Put(rec) {
			created++
		}
	}
	return created
}
