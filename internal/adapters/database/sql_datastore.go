package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/postgres"
	"github.com/ghxstship/search-service/internal/infrastructure/clients/sqlite"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
)

// goqu dialect names
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// SQLDatastore implements the Datastore interface on top of a SQL database
type SQLDatastore struct {
	db      *sql.DB
	qb      *goqu.Database
	dialect string

	mu      sync.Mutex
	columns map[string][]string
}

// NewPostgresDatastore creates a datastore backed by PostgreSQL
func NewPostgresDatastore(client *postgres.Client) *SQLDatastore {
	return NewSQLDatastore(client.DB(), DialectPostgres)
}

// NewSQLiteDatastore creates a datastore backed by SQLite
func NewSQLiteDatastore(client *sqlite.Client) *SQLDatastore {
	return NewSQLDatastore(client.DB(), DialectSQLite)
}

// NewSQLDatastore creates a datastore for an open database using the given goqu dialect
func NewSQLDatastore(db *sql.DB, dialect string) *SQLDatastore {
	return &SQLDatastore{
		db:      db,
		qb:      goqu.New(dialect, db),
		dialect: dialect,
		columns: make(map[string][]string),
	}
}

// Select runs q and, when asked, the matching count
func (d *SQLDatastore) Select(ctx context.Context, q repositories.Query) (*repositories.RowSet, error) {
	where, err := d.expressions(ctx, q.Table, q.Where)
	if err != nil {
		return nil, err
	}

	result := &repositories.RowSet{Total: -1}

	if q.WithCount {
		query, args, err := d.qb.From(q.Table).
			Prepared(true).
			Select(goqu.COUNT("*")).
			Where(where...).
			ToSQL()
		if err != nil {
			return nil, apperrors.NewInternalError("failed to build count query", err)
		}

		if err := d.db.QueryRowContext(ctx, query, args...).Scan(&result.Total); err != nil {
			return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to count %s", q.Table), err)
		}
	}

	ds := d.qb.From(q.Table).Prepared(true).Where(where...)
	if len(q.Columns) > 0 {
		cols := make([]interface{}, len(q.Columns))
		for i, c := range q.Columns {
			cols[i] = c
		}
		ds = ds.Select(cols...)
	}

	if q.Order != nil {
		if q.Order.Descending {
			ds = ds.Order(goqu.I(q.Order.Field).Desc())
		} else {
			ds = ds.Order(goqu.I(q.Order.Field).Asc())
		}
	}

	if q.Limit > 0 {
		ds = ds.Limit(uint(q.Limit))
	}

	if q.Offset > 0 {
		ds = ds.Offset(uint(q.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build select query", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to query %s", q.Table), err)
	}
	defer rows.Close()

	result.Rows, err = scanRows(rows)
	if err != nil {
		return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to scan %s", q.Table), err)
	}

	return result, nil
}

func (d *SQLDatastore) expressions(ctx context.Context, table string, preds []repositories.Predicate) ([]exp.Expression, error) {
	out := make([]exp.Expression, 0, len(preds))
	for _, p := range preds {
		e, err := d.expression(ctx, table, p)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *SQLDatastore) expression(ctx context.Context, table string, p repositories.Predicate) (exp.Expression, error) {
	switch pred := p.(type) {
	case repositories.Eq:
		return goqu.Ex{pred.Field: pred.Value}, nil

	case repositories.In:
		if len(pred.Values) == 0 {
			return goqu.L("1 = 0"), nil
		}
		return goqu.C(pred.Field).In(pred.Values...), nil

	case repositories.Contains:
		return d.like(pred.Field, "%"+escapeLike(pred.Value)+"%"), nil

	case repositories.ContainsAny:
		pattern := "%" + escapeLike(pred.Value) + "%"
		if d.dialect == DialectPostgres {
			return goqu.L(`CAST(? AS TEXT) ILIKE ?`, goqu.I(table), pattern), nil
		}
		return d.anyColumnLike(ctx, table, pattern)

	case repositories.Or:
		inner, err := d.expressions(ctx, table, pred.Predicates)
		if err != nil {
			return nil, err
		}
		return goqu.Or(inner...), nil

	case repositories.TextSearch:
		if d.dialect == DialectPostgres {
			return goqu.L(`? @@ plainto_tsquery(?)`, goqu.I(pred.Field), pred.Query), nil
		}
		return d.tokenSearch(ctx, table, pred)

	default:
		return nil, apperrors.NewInternalError(fmt.Sprintf("unsupported predicate %T", p), nil)
	}
}

func (d *SQLDatastore) like(field, pattern string) exp.Expression {
	if d.dialect == DialectPostgres {
		return goqu.L(`? ILIKE ? ESCAPE '\'`, goqu.I(field), pattern)
	}
	return goqu.L(`? LIKE ? ESCAPE '\'`, goqu.I(field), pattern)
}

func (d *SQLDatastore) anyColumnLike(ctx context.Context, table, pattern string) (exp.Expression, error) {
	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	ors := make([]exp.Expression, 0, len(cols))
	for _, c := range cols {
		ors = append(ors, d.like(c, pattern))
	}
	return goqu.Or(ors...), nil
}

// tokenSearch is the SQLite stand-in for text search: every token must occur
// in the field, or in any column when the field is not a real column.
func (d *SQLDatastore) tokenSearch(ctx context.Context, table string, pred repositories.TextSearch) (exp.Expression, error) {
	cols, err := d.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	hasField := false
	for _, c := range cols {
		if c == pred.Field {
			hasField = true
			break
		}
	}

	tokens := strings.Fields(pred.Query)
	if len(tokens) == 0 {
		return goqu.L("1 = 1"), nil
	}
	ands := make([]exp.Expression, 0, len(tokens))
	for _, tok := range tokens {
		pattern := "%" + escapeLike(tok) + "%"
		if hasField {
			ands = append(ands, d.like(pred.Field, pattern))
			continue
		}
		e, err := d.anyColumnLike(ctx, table, pattern)
		if err != nil {
			return nil, err
		}
		ands = append(ands, e)
	}
	return goqu.And(ands...), nil
}

func (d *SQLDatastore) tableColumns(ctx context.Context, table string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cols, ok := d.columns[table]; ok {
		return cols, nil
	}

	rows, err := d.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to read columns of %s", table), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to read columns of %s", table), err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to read columns of %s", table), err)
	}
	if len(cols) == 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("table %s not found", table))
	}

	d.columns[table] = cols
	return cols, nil
}

// scanRows reads arbitrary result sets into rows keyed by column name
func scanRows(rows *sql.Rows) ([]entities.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []entities.Row
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(entities.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}

	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
