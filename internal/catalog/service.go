// Package catalog answers product lookups for the draft editor.
package catalog

import (
	"context"
	"log/slog"
	"strconv"

	"golang.org/x/sync/singleflight"
)

// Service is the read-only product catalog lookup.
type Service struct {
	repo   Repository
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs the lookup.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Lookup returns product metadata. Concurrent lookups of the same id share one load.
func (s *Service) Lookup(ctx context.Context, id int64) (Product, error) {
	key, err := s.cache.BuildKey(ctx, "catalog", "product", strconv.FormatInt(id, 10))
	if err != nil {
		s.logger.Warn("catalog cache key", slog.Int64("item_id", id), slog.Any("error", err))
		return s.repo.Get(ctx, id)
	}
	resultChan := s.group.DoChan(key, func() (any, error) {
		var p Product
		err := s.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
			return s.repo.Get(ctx, id)
		})
		return p, err
	})
	select {
	case <-ctx.Done():
		return Product{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Product{}, res.Err
		}
		return res.Val.(Product), nil
	}
}

// Invalidate drops every cached product.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
