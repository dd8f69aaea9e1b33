package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ghxstship/search-service/internal/adapters/database"
	"github.com/ghxstship/search-service/internal/adapters/events"
	"github.com/ghxstship/search-service/internal/adapters/search"
	"github.com/ghxstship/search-service/internal/application/services"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/postgres"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/redis"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/typesense"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"github.com/ghxstship/search-service/pkg/config"
	"github.com/rs/zerolog/log"
)

func main() {
	var reset bool
	var intervalFlag string
	var batchSize int
	flag.BoolVar(&reset, "reset", false, "delete existing Typesense collections before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.IntVar(&batchSize, "batch-size", 500, "rows read from PostgreSQL per query")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger(cfg.App.Name+"-indexer", cfg.App.Env)

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, reset, batchSize); err != nil {
			log.Error().Err(err).Msg("Reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("next_run_in", interval).Msg("Reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, reset bool, batchSize int) error {
	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
	if err != nil {
		return err
	}

	if reset || os.Getenv("RESET_TYPESENSE") == "true" {
		for _, table := range cfg.Search.Tables {
			log.Info().Str("collection", table).Msg("Deleting collection before reindex")
			if err := tsClient.DropCollection(ctx, table); err != nil {
				log.Warn().Err(err).Str("collection", table).Msg("Failed to delete collection")
			}
		}
	}

	indexer := search.NewTypesenseIndexer(database.NewPostgresDatastore(pgClient), tsClient, batchSize)

	var indexed []string
	for _, table := range cfg.Search.Tables {
		written, err := indexer.IndexTable(ctx, table)
		if err != nil {
			log.Error().Err(err).Str("table", table).Int("written", written).Msg("Failed to index table")
			continue
		}
		log.Info().Str("table", table).Int("documents", written).Msg("Indexed table")
		indexed = append(indexed, table)
	}

	publishInvalidations(ctx, cfg, indexed)
	return nil
}

// publishInvalidations tells running API replicas to drop cached results for
// the reindexed tables. Without Redis there is nobody to tell.
func publishInvalidations(ctx context.Context, cfg *config.Config, tables []string) {
	if len(tables) == 0 {
		return
	}

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, skipping cache invalidation")
		return
	}
	defer redisClient.Close()

	bus := events.NewRedisInvalidationBus(redisClient)
	defer bus.Close()

	invalidation := services.NewCacheInvalidationService(bus)
	for _, table := range tables {
		if err := invalidation.Publish(ctx, table, "reindexed"); err != nil {
			log.Warn().Err(err).Str("table", table).Msg("Failed to publish cache invalidation")
		}
	}
}
