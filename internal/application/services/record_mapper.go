package services

import (
	"sort"

	"github.com/ghxstship/search-service/internal/domain/entities"
)

// RecordMapper adapts datastore rows to a caller's record type so strategies
// never depend on a concrete row schema.
type RecordMapper[T any] interface {
	// FromRow converts one fetched row
	FromRow(row entities.Row) (T, error)
	// ID returns the record id used to key highlights
	ID(item T) string
	// Field returns a field value and whether the record has it
	Field(item T, field string) (any, bool)
	// FieldNames lists the fields searched when a request names none
	FieldNames(item T) []string
}

// RowMapper is the identity mapper over untyped rows
type RowMapper struct{}

var _ RecordMapper[entities.Row] = RowMapper{}

func (RowMapper) FromRow(row entities.Row) (entities.Row, error) { return row, nil }

func (RowMapper) ID(item entities.Row) string { return item.ID() }

func (RowMapper) Field(item entities.Row, field string) (any, bool) {
	v, ok := item[field]
	return v, ok
}

func (RowMapper) FieldNames(item entities.Row) []string {
	names := make([]string, 0, len(item))
	for k := range item {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func mapRows[T any](rows []entities.Row, mapper RecordMapper[T]) ([]T, error) {
	items := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := mapper.FromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
