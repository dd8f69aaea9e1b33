package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/ghxstship/search-service/internal/domain/entities"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var analyticsColumns = []interface{}{
	"id", "query", "timestamp", "duration", "result_count",
	"clicked_results", "refinements", "abandoned", "user_id", "session_id",
}

// SearchAnalyticsAdapter implements SearchAnalyticsRepository on a SQL table.
// PostgreSQL stores the id lists as text[]; SQLite stores them as JSON text.
type SearchAnalyticsAdapter struct {
	db      *sql.DB
	qb      *goqu.Database
	dialect string
	table   string
}

// NewSearchAnalyticsAdapter creates a new search analytics adapter
func NewSearchAnalyticsAdapter(db *sql.DB, dialect, table string) *SearchAnalyticsAdapter {
	return &SearchAnalyticsAdapter{
		db:      db,
		qb:      goqu.New(dialect, db),
		dialect: dialect,
		table:   table,
	}
}

// EnsureTable creates the analytics table if it is missing
func (a *SearchAnalyticsAdapter) EnsureTable(ctx context.Context) error {
	listType, tsType := "TEXT[]", "TIMESTAMPTZ"
	if a.dialect == DialectSQLite {
		listType, tsType = "TEXT", "DATETIME"
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		"timestamp" %s NOT NULL,
		duration DOUBLE PRECISION NOT NULL,
		result_count INTEGER NOT NULL,
		clicked_results %s NOT NULL,
		refinements %s NOT NULL,
		abandoned BOOLEAN NOT NULL DEFAULT FALSE,
		user_id TEXT,
		session_id TEXT NOT NULL
	)`, a.table, tsType, listType, listType)

	if _, err := a.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.NewDatastoreError("failed to create analytics table", err)
	}
	return nil
}

// InsertBatch writes all records in one INSERT statement
func (a *SearchAnalyticsAdapter) InsertBatch(ctx context.Context, records []*entities.SearchAnalytics) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]interface{}, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}

		clicked, err := a.encodeList(rec.ClickedResults)
		if err != nil {
			return apperrors.NewInternalError("failed to encode clicked results", err)
		}
		refinements, err := a.encodeList(rec.Refinements)
		if err != nil {
			return apperrors.NewInternalError("failed to encode refinements", err)
		}

		var userID sql.NullString
		if rec.UserID != nil {
			userID = sql.NullString{String: *rec.UserID, Valid: true}
		}

		rows = append(rows, goqu.Record{
			"id":              rec.ID,
			"query":           rec.Query,
			"timestamp":       rec.Timestamp.UTC(),
			"duration":        rec.Duration,
			"result_count":    rec.ResultCount,
			"clicked_results": clicked,
			"refinements":     refinements,
			"abandoned":       rec.Abandoned,
			"user_id":         userID,
			"session_id":      rec.SessionID,
		})
	}

	query, args, err := a.qb.Insert(a.table).Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewDatastoreError("failed to insert search analytics", err)
	}

	return nil
}

// List returns records with timestamps inside r, oldest first
func (a *SearchAnalyticsAdapter) List(ctx context.Context, r entities.TimeRange) ([]*entities.SearchAnalytics, error) {
	ds := a.qb.Select(analyticsColumns...).From(a.table).Prepared(true)

	if !r.From.IsZero() {
		ds = ds.Where(goqu.C("timestamp").Gte(r.From.UTC()))
	}
	if !r.To.IsZero() {
		ds = ds.Where(goqu.C("timestamp").Lte(r.To.UTC()))
	}

	ds = ds.Order(goqu.I("timestamp").Asc())

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatastoreError("failed to list search analytics", err)
	}
	defer rows.Close()

	var records []*entities.SearchAnalytics
	for rows.Next() {
		rec, err := a.scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewDatastoreError("failed to scan search analytics", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatastoreError("failed to list search analytics", err)
	}

	return records, nil
}

// RecentQueries returns distinct query strings starting with prefix, most recently used first
func (a *SearchAnalyticsAdapter) RecentQueries(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	pattern := escapeLike(prefix) + "%"
	match := goqu.L(`? LIKE ? ESCAPE '\'`, goqu.I("query"), pattern)
	if a.dialect == DialectPostgres {
		match = goqu.L(`? ILIKE ? ESCAPE '\'`, goqu.I("query"), pattern)
	}

	query, args, err := a.qb.Select(goqu.C("query"), goqu.MAX("timestamp").As("last_seen")).
		From(a.table).
		Prepared(true).
		Where(match).
		GroupBy("query").
		Order(goqu.I("last_seen").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build suggestions query", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatastoreError("failed to read recent queries", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		var lastSeen interface{}
		if err := rows.Scan(&q, &lastSeen); err != nil {
			return nil, apperrors.NewDatastoreError("failed to scan recent query", err)
		}
		out = append(out, q)
	}

	return out, rows.Err()
}

func (a *SearchAnalyticsAdapter) encodeList(values []string) (interface{}, error) {
	if values == nil {
		values = []string{}
	}
	if a.dialect == DialectPostgres {
		return pq.Array(values), nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *SearchAnalyticsAdapter) scanRecord(rows *sql.Rows) (*entities.SearchAnalytics, error) {
	rec := &entities.SearchAnalytics{}
	var userID sql.NullString

	if a.dialect == DialectPostgres {
		err := rows.Scan(
			&rec.ID,
			&rec.Query,
			&rec.Timestamp,
			&rec.Duration,
			&rec.ResultCount,
			pq.Array(&rec.ClickedResults),
			pq.Array(&rec.Refinements),
			&rec.Abandoned,
			&userID,
			&rec.SessionID,
		)
		if err != nil {
			return nil, err
		}
	} else {
		var clicked, refinements string
		err := rows.Scan(
			&rec.ID,
			&rec.Query,
			&rec.Timestamp,
			&rec.Duration,
			&rec.ResultCount,
			&clicked,
			&refinements,
			&rec.Abandoned,
			&userID,
			&rec.SessionID,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(clicked), &rec.ClickedResults); err != nil {
			return nil, fmt.Errorf("clicked_results: %w", err)
		}
		if err := json.Unmarshal([]byte(refinements), &rec.Refinements); err != nil {
			return nil, fmt.Errorf("refinements: %w", err)
		}
	}

	if userID.Valid {
		uid := userID.String
		rec.UserID = &uid
	}

	return rec, nil
}
