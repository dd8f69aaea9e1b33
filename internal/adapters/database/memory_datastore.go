package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
)

// MemoryDatastore is an in-process Datastore used by the memory backend and tests
type MemoryDatastore struct {
	mu     sync.RWMutex
	tables map[string][]entities.Row
	err    error
}

// NewMemoryDatastore creates an empty memory datastore
func NewMemoryDatastore() *MemoryDatastore {
	return &MemoryDatastore{tables: make(map[string][]entities.Row)}
}

// Put replaces the contents of a table
func (m *MemoryDatastore) Put(table string, rows ...entities.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append([]entities.Row(nil), rows...)
}

// Append adds rows to a table
func (m *MemoryDatastore) Append(table string, rows ...entities.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], rows...)
}

// FailWith makes every subsequent Select return err. Pass nil to recover.
func (m *MemoryDatastore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Select evaluates q against the stored rows in insertion order
func (m *MemoryDatastore) Select(ctx context.Context, q repositories.Query) (*repositories.RowSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to query %s", q.Table), m.err)
	}

	rows, ok := m.tables[q.Table]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("table %s not found", q.Table))
	}

	matched := make([]entities.Row, 0, len(rows))
	for _, row := range rows {
		if matchAll(row, q.Where) {
			matched = append(matched, row)
		}
	}

	if q.Order != nil {
		field, desc := q.Order.Field, q.Order.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			c := entities.CompareValues(matched[i][field], matched[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	result := &repositories.RowSet{Total: -1}
	if q.WithCount {
		result.Total = int64(len(matched))
	}

	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && q.Limit < end-start {
		end = start + q.Limit
	}

	for _, row := range matched[start:end] {
		result.Rows = append(result.Rows, project(row, q.Columns))
	}

	return result, nil
}

func project(row entities.Row, columns []string) entities.Row {
	out := make(entities.Row, len(row))
	if len(columns) == 0 {
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func matchAll(row entities.Row, preds []repositories.Predicate) bool {
	for _, p := range preds {
		if !match(row, p) {
			return false
		}
	}
	return true
}

func match(row entities.Row, p repositories.Predicate) bool {
	switch pred := p.(type) {
	case repositories.Eq:
		return entities.FormatValue(row[pred.Field]) == entities.FormatValue(pred.Value)

	case repositories.In:
		got := entities.FormatValue(row[pred.Field])
		for _, v := range pred.Values {
			if got == entities.FormatValue(v) {
				return true
			}
		}
		return false

	case repositories.Contains:
		return containsFold(entities.FormatValue(row[pred.Field]), pred.Value)

	case repositories.ContainsAny:
		return anyColumnContains(row, pred.Value)

	case repositories.Or:
		for _, inner := range pred.Predicates {
			if match(row, inner) {
				return true
			}
		}
		return false

	case repositories.TextSearch:
		v, hasField := row[pred.Field]
		for _, tok := range strings.Fields(pred.Query) {
			if hasField {
				if !containsFold(entities.FormatValue(v), tok) {
					return false
				}
			} else if !anyColumnContains(row, tok) {
				return false
			}
		}
		return true
	}
	return false
}

func anyColumnContains(row entities.Row, needle string) bool {
	for _, v := range row {
		if containsFold(entities.FormatValue(v), needle) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
