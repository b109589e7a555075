package resolver

import (
	"context"

	"go.uber.org/zap"
)

// ResolveNames maps owner IDs to display names. Cache hits cost nothing;
// at most MaxBatchLookups of the remainder are fetched remotely, each
// followed by a courtesy delay and written back to the cache. IDs beyond
// the bound or that fail to resolve are simply absent from the result;
// callers treat absence as "name unknown", not as an error.
func (r *Resolver) ResolveNames(ctx context.Context, ownerIDs []string) map[string]string {
	names := make(map[string]string, len(ownerIDs))
	var misses []string
	for _, id := range ownerIDs {
		if id == "" {
			continue
		}
		if rec, ok := r.store.Get(id); ok && rec.Name != "" {
			names[id] = rec.Name
			continue
		}
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return names
	}
	r.logger.Debug("batch name resolution",
		zap.Int("cached", len(names)),
		zap.Int("misses", len(misses)),
	)

	budget := r.cfg.MaxBatchLookups
	if budget > len(misses) {
		budget = len(misses)
	}
	for _, id := range misses[:budget] {
		rec, err := r.api.RecordByID(ctx, id)
		if err != nil || rec.Name == "" {
			r.logger.Warn("owner lookup failed", zap.String("owner_id", id), zap.Error(err))
		} else {
			names[id] = rec.Name
			r.store.Put(rec)
			// Persist immediately so a later crash cannot lose the lookup.
			if err := r.store.Save(); err != nil {
				r.logger.Warn("cache save after owner lookup failed", zap.Error(err))
			}
		}
		if err := r.sleep.Sleep(ctx, r.cfg.BatchLookupDelay); err != nil {
			break
		}
	}
	return names
}
