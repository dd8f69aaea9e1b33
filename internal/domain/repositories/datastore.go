package repositories

import (
	"context"

	"github.com/ghxstship/search-service/internal/domain/entities"
)

// Datastore is the query-builder boundary every search strategy talks to.
type Datastore interface {
	Select(ctx context.Context, q Query) (*RowSet, error)
}

// Query selects rows from one table. Where predicates are AND-combined.
type Query struct {
	Table   string
	Columns []string // empty selects every column
	Where   []Predicate
	Order   *Ordering
	Offset  int
	Limit   int // 0 means unbounded

	// WithCount asks for the exact number of rows matching Where, ignoring Offset/Limit.
	WithCount bool
}

// Ordering sorts by one column.
type Ordering struct {
	Field      string
	Descending bool
}

// RowSet is a page of rows plus, when requested, the exact matching count.
type RowSet struct {
	Rows  []entities.Row
	Total int64 // -1 when the count was not requested
}

// Predicate is one of the condition types below.
type Predicate interface {
	isPredicate()
}

// Eq matches Field = Value.
type Eq struct {
	Field string
	Value any
}

// In matches Field against any of Values.
type In struct {
	Field  string
	Values []any
}

// Contains is a case-insensitive substring match on one column.
type Contains struct {
	Field string
	Value string
}

// ContainsAny is a best-effort case-insensitive substring match across all columns.
type ContainsAny struct {
	Value string
}

// Or matches when any of its predicates match.
type Or struct {
	Predicates []Predicate
}

// TextSearch uses the datastore's native text search against Field, which is
// either a plain column or a precomputed full-text index column.
type TextSearch struct {
	Field string
	Query string
}

func (Eq) isPredicate()          {}
func (In) isPredicate()          {}
func (Contains) isPredicate()    {}
func (ContainsAny) isPredicate() {}
func (Or) isPredicate()          {}
func (TextSearch) isPredicate()  {}

// FilterPredicates converts request filters into Eq/In predicates in field order.
func FilterPredicates(filters entities.Filters) []Predicate {
	var preds []Predicate
	for _, field := range filters.Fields() {
		values, isList := entities.FilterValues(filters[field])
		if isList {
			preds = append(preds, In{Field: field, Values: values})
		} else {
			preds = append(preds, Eq{Field: field, Value: values[0]})
		}
	}
	return preds
}
