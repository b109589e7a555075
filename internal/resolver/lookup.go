// Package resolver implements cache-first lookups against the record store
// with network fallback: single name resolution and bounded batch owner-ID
// to name resolution.
package resolver

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lokatools/marketmirror/internal/market"
	"github.com/lokatools/marketmirror/internal/metrics"
	"github.com/lokatools/marketmirror/internal/store"
)

// Config controls fallback behavior.
type Config struct {
	// MaxBatchLookups bounds remote by-ID fetches per batch resolution.
	MaxBatchLookups int
	// BatchLookupDelay is the courtesy pause between remote fetches.
	BatchLookupDelay time.Duration
}

// Resolver answers point queries from the record store, falling back to the
// upstream API and promoting misses into the cache.
type Resolver struct {
	api    market.CatalogAPI
	store  *store.RecordStore
	sleep  market.Sleeper
	cfg    Config
	logger *zap.Logger
}

// New constructs a Resolver.
func New(
	api market.CatalogAPI,
	recordStore *store.RecordStore,
	sleep market.Sleeper,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if cfg.MaxBatchLookups <= 0 {
		cfg.MaxBatchLookups = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		api:    api,
		store:  recordStore,
		sleep:  sleep,
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve finds a record by name: cache scan first, then one remote
// exact-name search whose result is written back to the cache. Absence is
// always reported as a false second value, never an error; every failure
// path resolves to not-found.
func (r *Resolver) Resolve(ctx context.Context, name string) (market.Record, bool) {
	if name == "" {
		return market.Record{}, false
	}

	if rec, ok := r.store.FindByName(name); ok {
		metrics.ObserveCacheLookup("hit")
		return rec, true
	}
	metrics.ObserveCacheLookup("miss")

	r.logger.Info("name not cached, trying upstream", zap.String("name", name))
	rec, err := r.api.FindRecordByName(ctx, name)
	if err != nil {
		metrics.ObserveRemoteLookup("miss")
		r.logger.Warn("upstream lookup failed", zap.String("name", name), zap.Error(err))
		return market.Record{}, false
	}
	if rec.ID == "" {
		metrics.ObserveRemoteLookup("miss")
		return market.Record{}, false
	}
	metrics.ObserveRemoteLookup("hit")

	r.store.Put(rec)
	if err := r.store.Save(); err != nil {
		r.logger.Warn("cache save after lookup failed", zap.Error(err))
	}
	return rec, true
}
