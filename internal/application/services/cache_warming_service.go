package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/rs/zerolog/log"
)

// CacheWarmer is a dispatcher that can pre-compute results
type CacheWarmer interface {
	Table() string
	GetSearchMetrics(ctx context.Context, tr *entities.TimeRange) (*entities.SearchMetrics, error)
	Warm(ctx context.Context, opts entities.SearchOptions) error
}

// CacheWarmingService replays the most frequent recent queries so the first
// searches after a deploy hit a warm cache.
type CacheWarmingService struct {
	warmers  []CacheWarmer
	lookback time.Duration
	now      func() time.Time
}

// NewCacheWarmingService creates a new cache warming service. Queries from the
// last lookback period are replayed; zero means all history.
func NewCacheWarmingService(lookback time.Duration, warmers ...CacheWarmer) *CacheWarmingService {
	return &CacheWarmingService{
		warmers:  warmers,
		lookback: lookback,
		now:      time.Now,
	}
}

// WarmCache replays top queries on every dispatcher and returns how many were cached
func (s *CacheWarmingService) WarmCache(ctx context.Context) (int, error) {
	log.Info().Int("dispatchers", len(s.warmers)).Msg("Starting cache warming")

	var tr *entities.TimeRange
	if s.lookback > 0 {
		tr = &entities.TimeRange{From: s.now().Add(-s.lookback).UTC()}
	}

	warmed := 0
	for _, w := range s.warmers {
		n, err := s.warm(ctx, w, tr)
		warmed += n
		if err != nil {
			return warmed, err
		}
	}

	log.Info().Int("warmed", warmed).Msg("Cache warming completed")
	return warmed, nil
}

func (s *CacheWarmingService) warm(ctx context.Context, w CacheWarmer, tr *entities.TimeRange) (int, error) {
	metrics, err := w.GetSearchMetrics(ctx, tr)
	if err != nil {
		return 0, fmt.Errorf("failed to load top queries for %s: %w", w.Table(), err)
	}

	warmed := 0
	for _, q := range metrics.TopQueries {
		if err := ctx.Err(); err != nil {
			return warmed, err
		}
		if err := w.Warm(ctx, entities.SearchOptions{Query: q.Query}); err != nil {
			log.Warn().Err(err).Str("table", w.Table()).Str("query", q.Query).Msg("Failed to warm query")
			continue
		}
		warmed++
	}
	return warmed, nil
}
