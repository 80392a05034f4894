package planscope

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/institution-management/internal/cache"
	"github.com/frahmantamala/institution-management/internal/catalog"
)

// Resolver loads plan scopes from the catalog and keeps them in a cache.
type Resolver struct {
	plans  catalog.PlanRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewResolver(plans catalog.PlanRepository, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		plans:  plans,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(planID int64) string {
	return fmt.Sprintf("plan_scope:%d", planID)
}

func (r *Resolver) Scope(ctx context.Context, planID int64) ([]string, error) {
	key := cacheKey(planID)
	if raw, ok := r.cache.Get(ctx, key); ok {
		var keys []string
		if err := json.Unmarshal(raw, &keys); err == nil {
			return keys, nil
		}
		r.logger.Warn("discarding unreadable plan scope cache entry", "plan_id", planID)
		r.cache.Delete(ctx, key)
	}

	keys, err := r.plans.GetPermissionKeys(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan scope: %w", err)
	}

	if raw, err := json.Marshal(keys); err == nil {
		r.cache.Set(ctx, key, raw, r.ttl)
	}
	return keys, nil
}

// Invalidate drops the cached scope after the plan's permissions change.
func (r *Resolver) Invalidate(ctx context.Context, planID int64) {
	r.cache.Delete(ctx, cacheKey(planID))
}
