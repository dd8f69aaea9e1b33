package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/doug-martin/goqu/v9"
	"github.com/ghxstship/search-service/internal/adapters/database"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/postgres"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/sqlite"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"github.com/ghxstship/search-service/pkg/config"
	"github.com/rs/zerolog/log"
)

type seedTable struct {
	name    string
	columns string
	rows    []goqu.Record
}

var seedTables = []seedTable{
	{
		name:    "companies",
		columns: "id TEXT PRIMARY KEY, name TEXT NOT NULL, city TEXT, tier TEXT, description TEXT",
		rows: []goqu.Record{
			{"id": "c1", "name": "Alpha Crew", "city": "Austin", "tier": "gold", "description": "Stagehands and riggers for arena tours"},
			{"id": "c2", "name": "Beta Crew", "city": "Denver", "tier": "silver", "description": "Festival site crew and load-in specialists"},
			{"id": "c3", "name": "Gamma Team", "city": "Austin", "tier": "bronze", "description": "Lighting programmers and follow-spot operators"},
			{"id": "c4", "name": "Delta Audio", "city": "Nashville", "tier": "gold", "description": "Front of house engineers and monitor techs"},
			{"id": "c5", "name": "Echo Staging", "city": "Denver", "tier": "silver", "description": "Truss, decking and stage roofs"},
		},
	},
	{
		name:    "assets",
		columns: "id TEXT PRIMARY KEY, name TEXT NOT NULL, category TEXT, status TEXT, description TEXT",
		rows: []goqu.Record{
			{"id": "a1", "name": "Truss Segment 3m", "category": "rigging", "status": "available", "description": "Box truss, aluminium, 3 metre"},
			{"id": "a2", "name": "Chain Hoist 1T", "category": "rigging", "status": "repair", "description": "One tonne motor hoist"},
			{"id": "a3", "name": "Moving Head Spot", "category": "lighting", "status": "available", "description": "LED spot fixture with gobo wheel"},
			{"id": "a4", "name": "Line Array Cabinet", "category": "audio", "status": "deployed", "description": "Dual 12 inch line array element"},
		},
	},
	{
		name:    "marketplace_listings",
		columns: "id TEXT PRIMARY KEY, name TEXT NOT NULL, category TEXT, price DOUBLE PRECISION, description TEXT",
		rows: []goqu.Record{
			{"id": "m1", "name": "Used LED Wall Panels", "category": "video", "price": 12500.0, "description": "Forty 500mm panels with flight cases"},
			{"id": "m2", "name": "Stage Plot Templates", "category": "services", "price": 49.0, "description": "Editable stage plot and input list pack"},
			{"id": "m3", "name": "Crew Catering Weekend", "category": "services", "price": 1800.0, "description": "Two day crew catering for up to sixty"},
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger(cfg.App.Name+"-seed", cfg.App.Env)

	ctx := context.Background()

	var db *sql.DB
	dialect := database.DialectPostgres
	switch cfg.Search.Backend {
	case config.BackendSQLite:
		client, err := sqlite.NewClient(ctx, &cfg.SQLite)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open SQLite")
		}
		defer client.Close()
		db, dialect = client.DB(), database.DialectSQLite
	default:
		client, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to DB")
		}
		defer client.Close()
		db = client.DB()
	}

	reset := os.Getenv("RESET_DB") == "true"
	for _, table := range seedTables {
		if err := seed(ctx, db, dialect, cfg.Search.FullTextColumn, table, reset); err != nil {
			log.Fatal().Err(err).Str("table", table.name).Msg("Failed to seed table")
		}
		log.Info().Str("table", table.name).Int("rows", len(table.rows)).Msg("Seeded table")
	}
}

func seed(ctx context.Context, db *sql.DB, dialect, ftsColumn string, t seedTable, reset bool) error {
	if reset {
		log.Info().Str("table", t.name).Msg("RESET_DB=true detected, dropping table before seeding")
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, t.name)); err != nil {
			return err
		}
	}

	columns := t.columns
	if dialect == database.DialectPostgres {
		columns += fmt.Sprintf(`, %q tsvector GENERATED ALWAYS AS (to_tsvector('english', coalesce(name, '') || ' ' || coalesce(description, ''))) STORED`, ftsColumn)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s)`, t.name, columns)); err != nil {
		return err
	}

	rows := make([]interface{}, len(t.rows))
	for i, r := range t.rows {
		rows[i] = r
	}
	query, args, err := goqu.Dialect(dialect).
		Insert(t.name).
		Rows(rows...).
		OnConflict(goqu.DoNothing()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query, args...)
	return err
}
