package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	tsclient "github.com/ghxstship/search-service/internal/infrastructure/clients/typesense"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
)

// maxPerPage is the largest page Typesense will return
const maxPerPage = 250

// TypesenseDatastore serves Datastore queries from Typesense collections named after tables.
// Text predicates become the q/query_by pair; equality predicates become filter_by.
type TypesenseDatastore struct {
	client      *tsclient.Client
	queryFields map[string][]string
	indexColumn string
}

var _ repositories.Datastore = (*TypesenseDatastore)(nil)

// NewTypesenseDatastore creates a Typesense datastore. queryFields lists, per
// collection, the fields searched when a predicate does not name one or names
// the full-text index column.
func NewTypesenseDatastore(client *tsclient.Client, queryFields map[string][]string, indexColumn string) *TypesenseDatastore {
	return &TypesenseDatastore{client: client, queryFields: queryFields, indexColumn: indexColumn}
}

// Select runs q as one Typesense search
func (d *TypesenseDatastore) Select(ctx context.Context, q repositories.Query) (*repositories.RowSet, error) {
	params, skip, err := buildSearchParams(q, d.defaultFields(q.Table), d.indexColumn)
	if err != nil {
		return nil, err
	}

	result, err := d.client.Search(ctx, q.Table, params)
	if err != nil {
		return nil, apperrors.NewDatastoreError(fmt.Sprintf("failed to search collection %s", q.Table), err)
	}

	rs := &repositories.RowSet{Total: -1}
	if result.Found != nil {
		if q.WithCount {
			rs.Total = int64(*result.Found)
		}
		if truncated(q, int(*result.Found)) {
			observability.LoggerFromContext(ctx).Warn().
				Str("collection", q.Table).
				Int("found", int(*result.Found)).
				Int("limit", q.Limit).
				Msgf("Result set capped at %d rows", maxPerPage)
		}
	}

	if result.Hits == nil {
		return rs, nil
	}

	for i, hit := range *result.Hits {
		if i < skip || hit.Document == nil {
			continue
		}
		if q.Limit > 0 && len(rs.Rows) == q.Limit {
			break
		}
		rs.Rows = append(rs.Rows, entities.Row(*hit.Document))
	}

	return rs, nil
}

// truncated reports whether q asked for more rows than one Typesense page can
// hold while more than that matched.
func truncated(q repositories.Query, found int) bool {
	return (q.Limit <= 0 || q.Limit > maxPerPage) && found > maxPerPage
}

func (d *TypesenseDatastore) defaultFields(table string) []string {
	if fields := d.queryFields[table]; len(fields) > 0 {
		return fields
	}
	return []string{"name"}
}

// buildSearchParams translates q. skip is the number of leading hits to drop
// when the offset does not fall on a page boundary.
func buildSearchParams(q repositories.Query, defaultFields []string, indexColumn string) (*api.SearchCollectionParams, int, error) {
	text, queryBy := "*", defaultFields
	var filters []string

	for _, p := range q.Where {
		switch pred := p.(type) {
		case repositories.Eq:
			filters = append(filters, fmt.Sprintf("%s:=%s", pred.Field, filterLiteral(pred.Value)))

		case repositories.In:
			if len(pred.Values) == 0 {
				return nil, 0, apperrors.NewValidationError(fmt.Sprintf("empty value list for %s", pred.Field))
			}
			lits := make([]string, len(pred.Values))
			for i, v := range pred.Values {
				lits[i] = filterLiteral(v)
			}
			filters = append(filters, fmt.Sprintf("%s:=[%s]", pred.Field, strings.Join(lits, ",")))

		case repositories.Contains:
			text, queryBy = pred.Value, []string{pred.Field}

		case repositories.ContainsAny:
			text = pred.Value

		case repositories.TextSearch:
			text = pred.Query
			if pred.Field != "" && pred.Field != indexColumn {
				queryBy = []string{pred.Field}
			}

		case repositories.Or:
			value, fields, ok := sameValueContains(pred)
			if !ok {
				return nil, 0, apperrors.NewValidationError("typesense supports OR only across text fields sharing one query")
			}
			text, queryBy = value, fields

		default:
			return nil, 0, apperrors.NewInternalError(fmt.Sprintf("unsupported predicate %T", p), nil)
		}
	}

	params := &api.SearchCollectionParams{
		Q:       pointer.String(text),
		QueryBy: pointer.String(strings.Join(queryBy, ",")),
	}
	if len(filters) > 0 {
		params.FilterBy = pointer.String(strings.Join(filters, " && "))
	}
	if q.Order != nil {
		dir := "asc"
		if q.Order.Descending {
			dir = "desc"
		}
		params.SortBy = pointer.String(q.Order.Field + ":" + dir)
	}
	if len(q.Columns) > 0 {
		params.IncludeFields = pointer.String(strings.Join(q.Columns, ","))
	}

	page, perPage, skip, ok := window(q.Offset, q.Limit)
	if !ok {
		return nil, 0, apperrors.NewValidationError(fmt.Sprintf("offset %d is not reachable with page size %d", q.Offset, q.Limit))
	}
	params.Page = pointer.Int(page)
	params.PerPage = pointer.Int(perPage)

	return params, skip, nil
}

// window maps an offset/limit pair onto Typesense's page/per_page
func window(offset, limit int) (page, perPage, skip int, ok bool) {
	if limit <= 0 || limit > maxPerPage {
		limit = maxPerPage
	}
	if offset%limit == 0 {
		return offset/limit + 1, limit, 0, true
	}
	if offset >= 0 && offset <= maxPerPage-limit {
		return 1, offset + limit, offset, true
	}
	return 0, 0, 0, false
}

func sameValueContains(or repositories.Or) (string, []string, bool) {
	var value string
	fields := make([]string, 0, len(or.Predicates))
	for i, p := range or.Predicates {
		c, ok := p.(repositories.Contains)
		if !ok {
			return "", nil, false
		}
		if i > 0 && c.Value != value {
			return "", nil, false
		}
		value = c.Value
		fields = append(fields, c.Field)
	}
	return value, fields, len(fields) > 0
}

func filterLiteral(v any) string {
	switch v.(type) {
	case string:
		return "`" + strings.ReplaceAll(entities.FormatValue(v), "`", "") + "`"
	default:
		return entities.FormatValue(v)
	}
}
