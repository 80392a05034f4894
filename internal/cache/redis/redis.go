package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/institution-management/internal/cache"
	rdb "github.com/redis/go-redis/v9"
)

type Cache struct {
	c      *rdb.Client
	prefix string
	logger *slog.Logger
}

func New(addr string, db int, prefix string, logger *slog.Logger) *Cache {
	return &Cache{
		c:      rdb.NewClient(&rdb.Options{Addr: addr, DB: db}),
		prefix: prefix,
		logger: logger,
	}
}

var _ cache.Cache = (*Cache)(nil)

// Get treats every Redis error as a miss so callers fall back to the database.
func (r *Cache) Get(ctx context.Context, k string) ([]byte, bool) {
	b, err := r.c.Get(ctx, r.prefix+k).Bytes()
	if err != nil {
		if !errors.Is(err, rdb.Nil) {
			r.logger.Warn("redis get failed", "key", k, "error", err)
		}
		return nil, false
	}
	return b, true
}

func (r *Cache) Set(ctx context.Context, k string, v []byte, ttl time.Duration) {
	if err := r.c.Set(ctx, r.prefix+k, v, ttl).Err(); err != nil {
		r.logger.Warn("redis set failed", "key", k, "error", err)
	}
}

func (r *Cache) Delete(ctx context.Context, k string) {
	if err := r.c.Del(ctx, r.prefix+k).Err(); err != nil {
		r.logger.Warn("redis delete failed", "key", k, "error", err)
	}
}

func (r *Cache) Ping(ctx context.Context) error {
	return r.c.Ping(ctx).Err()
}

func (r *Cache) Close() error {
	return r.c.Close()
}
