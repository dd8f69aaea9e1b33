package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ghxstship/search-service/internal/adapters/cache"
	"github.com/ghxstship/search-service/internal/adapters/database"
	"github.com/ghxstship/search-service/internal/adapters/events"
	"github.com/ghxstship/search-service/internal/adapters/search"
	"github.com/ghxstship/search-service/internal/application/services"
	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/providers"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/postgres"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/redis"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/sqlite"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/typesense"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"github.com/ghxstship/search-service/pkg/config"
	"github.com/rs/zerolog/log"
)

// App holds one dispatcher per configured table and the services around them
type App struct {
	Searchers    map[string]*services.SearchService[entities.Row]
	Invalidation *services.CacheInvalidationService
	Warming      *services.CacheWarmingService

	// Memory is set for the memory backend so callers can load rows
	Memory *database.MemoryDatastore

	analytics []*services.SearchAnalyticsService
	closers   []func() error
}

// Build connects the configured backend and creates the dispatchers.
// Redis is optional: without it the cache stays per process and invalidation
// events only reach this process.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*App, error) {
	a := &App{Searchers: make(map[string]*services.SearchService[entities.Row])}

	store, analyticsFor, err := a.backend(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	var shared providers.CacheProvider
	var bus providers.InvalidationBus
	if cfg.Search.Backend != config.BackendMemory {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, running with process-local cache")
		} else {
			a.closers = append(a.closers, redisClient.Close)
			if cfg.Search.SharedCache {
				shared = cache.NewRedisAdapter(redisClient)
			}
			bus = events.NewRedisInvalidationBus(redisClient)
		}
	}
	if bus == nil {
		bus = events.NewMemoryInvalidationBus()
	}
	a.closers = append(a.closers, bus.Close)

	a.Invalidation = services.NewCacheInvalidationService(bus)
	warmers := make([]services.CacheWarmer, 0, len(cfg.Search.Tables))

	for _, table := range cfg.Search.Tables {
		analytics := services.NewSearchAnalyticsService(
			analyticsFor(table),
			cfg.Search.AnalyticsBatchSize,
			services.WithAnalyticsMetrics(metrics, table),
		)
		opts := []services.SearchServiceOption{services.WithMetrics(metrics)}
		if shared != nil {
			opts = append(opts, services.WithSharedCache(shared))
		}

		svc := services.NewSearchService[entities.Row](store, services.RowMapper{}, analytics, services.SearchConfig{
			Table:            table,
			CacheTTL:         cfg.Search.CacheTTL,
			CacheSize:        cfg.Search.CacheSize,
			CandidateLimit:   cfg.Search.CandidateLimit,
			FacetSampleLimit: cfg.Search.FacetSampleLimit,
			FuzzyThreshold:   cfg.Search.FuzzyThreshold,
			FullTextColumn:   cfg.Search.FullTextColumn,
		}, opts...)

		a.Searchers[table] = svc
		a.analytics = append(a.analytics, analytics)
		a.Invalidation.Register(svc)
		warmers = append(warmers, svc)
	}
	a.Warming = services.NewCacheWarmingService(0, warmers...)

	log.Info().
		Str("backend", cfg.Search.Backend).
		Strs("tables", cfg.Search.Tables).
		Bool("shared_cache", shared != nil).
		Msg("Search dispatchers initialized")
	return a, nil
}

// backend returns the datastore and a per-table analytics repository factory
func (a *App) backend(ctx context.Context, cfg *config.Config) (repositories.Datastore, func(string) repositories.SearchAnalyticsRepository, error) {
	switch cfg.Search.Backend {
	case config.BackendMemory:
		a.Memory = database.NewMemoryDatastore()
		repo := database.NewMemorySearchAnalyticsRepository()
		return a.Memory, func(string) repositories.SearchAnalyticsRepository { return repo }, nil

	case config.BackendSQLite:
		client, err := sqlite.NewClient(ctx, &cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, client.Close)
		analytics, err := a.sqlAnalytics(ctx, client.DB(), database.DialectSQLite, cfg.Search.AnalyticsTable)
		if err != nil {
			return nil, nil, err
		}
		return database.NewSQLiteDatastore(client), analytics, nil

	case config.BackendTypesense:
		tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
		if err != nil {
			return nil, nil, err
		}
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("typesense backend stores analytics in PostgreSQL: %w", err)
		}
		a.closers = append(a.closers, pgClient.Close)
		analytics, err := a.sqlAnalytics(ctx, pgClient.DB(), database.DialectPostgres, cfg.Search.AnalyticsTable)
		if err != nil {
			return nil, nil, err
		}
		return search.NewTypesenseDatastore(tsClient, cfg.Search.QueryFields, cfg.Search.FullTextColumn), analytics, nil

	default:
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pgClient.Close)
		analytics, err := a.sqlAnalytics(ctx, pgClient.DB(), database.DialectPostgres, cfg.Search.AnalyticsTable)
		if err != nil {
			return nil, nil, err
		}
		return database.NewPostgresDatastore(pgClient), analytics, nil
	}
}

func (a *App) sqlAnalytics(ctx context.Context, db *sql.DB, dialect, table string) (func(string) repositories.SearchAnalyticsRepository, error) {
	adapter := database.NewSearchAnalyticsAdapter(db, dialect, table)
	if err := adapter.EnsureTable(ctx); err != nil {
		return nil, err
	}
	return func(string) repositories.SearchAnalyticsRepository { return adapter }, nil
}

// Searcher returns the dispatcher for table
func (a *App) Searcher(table string) (*services.SearchService[entities.Row], error) {
	svc, ok := a.Searchers[table]
	if !ok {
		return nil, fmt.Errorf("table %q is not configured for search", table)
	}
	return svc, nil
}

// StartBackground starts the periodic analytics flush and the invalidation listener
func (a *App) StartBackground(ctx context.Context, cfg *config.Config) error {
	for _, analytics := range a.analytics {
		analytics.StartPeriodicFlush(ctx, cfg.Search.AnalyticsFlushInterval)
	}
	return a.Invalidation.Start()
}

// Close flushes buffered analytics, stops the invalidation listener and
// releases connections.
func (a *App) Close(ctx context.Context) {
	for _, analytics := range a.analytics {
		if err := analytics.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to flush analytics on shutdown")
		}
	}
	if a.Invalidation != nil {
		a.Invalidation.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Error closing connection")
		}
	}
}
