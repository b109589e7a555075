// Package app assembles the service: configuration, logging, stores, the
// upstream client, and the components built on top of them.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/aggregator"
	"github.com/lokatools/marketmirror/internal/client"
	"github.com/lokatools/marketmirror/internal/clock/system"
	"github.com/lokatools/marketmirror/internal/config"
	"github.com/lokatools/marketmirror/internal/crawler"
	"github.com/lokatools/marketmirror/internal/logging"
	"github.com/lokatools/marketmirror/internal/metrics"
	"github.com/lokatools/marketmirror/internal/pace"
	"github.com/lokatools/marketmirror/internal/resolver"
	"github.com/lokatools/marketmirror/internal/store"
)

// App holds every long-lived component. Commands receive one fully built
// App and pick the pieces they need.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Records    *store.RecordStore
	Links      *store.IdentityLinkStore
	Client     *client.Client
	Crawler    *crawler.Crawler
	Resolver   *resolver.Resolver
	Aggregator *aggregator.Aggregator
}

// New builds the full component graph from configuration.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	records, err := store.NewRecordStore(cfg.Cache.RecordsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	links, err := store.NewIdentityLinkStore(cfg.Cache.LinksPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open link store: %w", err)
	}

	limiter := pace.New(pace.Config{
		DefaultRPS:   cfg.Upstream.RPS,
		DefaultBurst: cfg.Upstream.Burst,
	})

	apiClient, err := client.New(client.Config{
		BaseURL:         cfg.Upstream.BaseURL,
		UserAgent:       cfg.Upstream.UserAgent,
		Timeout:         cfg.UpstreamTimeout(),
		ListingPageSize: cfg.Aggregator.PageSize,
	}, limiter, logger)
	if err != nil {
		return nil, fmt.Errorf("build upstream client: %w", err)
	}

	clk := system.New()

	crawl := crawler.New(apiClient, records, clk, clk, crawler.Config{
		PageSize:         cfg.Crawler.PageSize,
		MaxPagesPerCycle: cfg.Crawler.MaxPagesPerCycle,
		PageDelay:        cfg.Crawler.PageDelay(),
		ErrorDelay:       cfg.Crawler.ErrorDelay(),
	}, logger)

	res := resolver.New(apiClient, records, clk, resolver.Config{
		MaxBatchLookups:  cfg.Resolver.MaxBatchLookups,
		BatchLookupDelay: cfg.Resolver.BatchLookupDelay(),
	}, logger)

	agg := aggregator.New(apiClient, clk, aggregator.Config{
		PageSize:   cfg.Aggregator.PageSize,
		MaxPages:   cfg.Aggregator.MaxPages,
		MaxItems:   cfg.Aggregator.MaxItems,
		MaxRetries: cfg.Aggregator.MaxRetries,
		RetryDelay: cfg.Aggregator.RetryDelay(),
	}, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Records:    records,
		Links:      links,
		Client:     apiClient,
		Crawler:    crawl,
		Resolver:   res,
		Aggregator: agg,
	}, nil
}

// Close flushes the stores and the logger. Safe to call exactly once at
// shutdown.
func (a *App) Close() {
	if err := a.Records.Save(); err != nil {
		a.Logger.Error("record store save on shutdown failed", zap.Error(err))
	}
	if err := a.Links.Save(); err != nil {
		a.Logger.Error("link store save on shutdown failed", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
