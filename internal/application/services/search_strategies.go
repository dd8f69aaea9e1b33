package services

import (
	"context"
	"regexp"
	"sort"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	"golang.org/x/sync/errgroup"
)

// maxFacetValues is the number of buckets kept per facet
const maxFacetValues = 10

// searchExact runs a case-insensitive substring match in the datastore.
// Total is the datastore's exact count, independent of the page window.
func (s *SearchService[T]) searchExact(ctx context.Context, opts entities.SearchOptions) (*entities.SearchResult[T], error) {
	q := s.baseQuery(opts)
	if opts.Query != "" {
		if len(opts.Fields) > 0 {
			or := repositories.Or{Predicates: make([]repositories.Predicate, 0, len(opts.Fields))}
			for _, field := range opts.Fields {
				or.Predicates = append(or.Predicates, repositories.Contains{Field: field, Value: opts.Query})
			}
			q.Where = append(q.Where, or)
		} else {
			q.Where = append(q.Where, repositories.ContainsAny{Value: opts.Query})
		}
	}

	items, total, err := s.selectPage(ctx, q)
	if err != nil {
		return nil, err
	}
	return newResult(items, total, opts.Pagination), nil
}

// searchFullText delegates matching to the datastore's text search. Facets are
// sampled concurrently with the main query.
func (s *SearchService[T]) searchFullText(ctx context.Context, opts entities.SearchOptions) (*entities.SearchResult[T], error) {
	q := s.baseQuery(opts)
	if opts.Query != "" {
		field := s.cfg.FullTextColumn
		if len(opts.Fields) == 1 {
			field = opts.Fields[0]
		}
		q.Where = append(q.Where, repositories.TextSearch{Field: field, Query: opts.Query})
	}

	var (
		items  []T
		total  int
		facets = make([][]entities.FacetValue, len(opts.Facets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, total, err = s.selectPage(gctx, q)
		return err
	})
	for i, field := range opts.Facets {
		g.Go(func() error {
			values, err := s.facet(gctx, field, opts.Filters[field])
			if err != nil {
				return err
			}
			facets[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := newResult(items, total, opts.Pagination)
	if len(opts.Facets) > 0 {
		result.Facets = make(map[string][]entities.FacetValue, len(opts.Facets))
		for i, field := range opts.Facets {
			result.Facets[field] = facets[i]
		}
	}
	return result, nil
}

// facet counts up to FacetSampleLimit values of field, ignoring the main
// query, and keeps the most frequent ones.
func (s *SearchService[T]) facet(ctx context.Context, field string, selected any) ([]entities.FacetValue, error) {
	rs, err := s.store.Select(ctx, repositories.Query{
		Table:   s.cfg.Table,
		Columns: []string{field},
		Limit:   s.cfg.FacetSampleLimit,
	})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range rs.Rows {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		counts[entities.FormatValue(v)]++
	}

	current := make(map[string]struct{})
	if selected != nil {
		values, _ := entities.FilterValues(selected)
		for _, v := range values {
			current[entities.FormatValue(v)] = struct{}{}
		}
	}

	out := make([]entities.FacetValue, 0, len(counts))
	for value, count := range counts {
		_, isSelected := current[value]
		out = append(out, entities.FacetValue{Value: value, Count: count, Selected: isSelected})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > maxFacetValues {
		out = out[:maxFacetValues]
	}
	return out, nil
}

// searchFuzzy ranks up to CandidateLimit rows in memory. Filters apply after
// ranking; an explicit sort replaces the relevance order.
func (s *SearchService[T]) searchFuzzy(ctx context.Context, opts entities.SearchOptions) (*entities.SearchResult[T], error) {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	ranked := Rank(s.fuzzy, candidates, opts.Query, opts.Fields, s.mapper)
	if len(opts.Filters) > 0 {
		accepted := filterSets(opts.Filters)
		kept := ranked[:0]
		for _, r := range ranked {
			if matchesFilters(r.Item, accepted, s.mapper) {
				kept = append(kept, r)
			}
		}
		ranked = kept
	}
	sortSlice(ranked, opts.Sort, func(r ScoredResult[T], field string) (any, bool) {
		return s.mapper.Field(r.Item, field)
	})

	page := paginate(ranked, opts.Pagination)
	items := make([]T, 0, len(page))
	for _, r := range page {
		items = append(items, r.Item)
	}

	result := newResult(items, len(ranked), opts.Pagination)
	if opts.Highlight {
		result.Highlights = make(map[string][]string)
		for _, r := range page {
			if h := fuzzyHighlights(r.Matches); len(h) > 0 {
				result.Highlights[s.mapper.ID(r.Item)] = h
			}
		}
	}
	return result, nil
}

// searchRegex keeps candidates where re matches a selected field, or any
// string field when none are selected.
func (s *SearchService[T]) searchRegex(ctx context.Context, opts entities.SearchOptions, re *regexp.Regexp) (*entities.SearchResult[T], error) {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]T, 0, len(candidates))
	for _, item := range candidates {
		for _, text := range s.regexValues(item, opts.Fields) {
			if re.MatchString(text) {
				matched = append(matched, item)
				break
			}
		}
	}

	matched = applyFilters(matched, opts.Filters, s.mapper)
	sortItems(matched, opts.Sort, s.mapper)
	page := paginate(matched, opts.Pagination)

	result := newResult(page, len(matched), opts.Pagination)
	if opts.Highlight {
		result.Highlights = make(map[string][]string)
		for _, item := range page {
			if h := regexHighlights(re, s.regexValues(item, opts.Fields)); len(h) > 0 {
				result.Highlights[s.mapper.ID(item)] = h
			}
		}
	}
	return result, nil
}

func (s *SearchService[T]) regexValues(item T, fields []string) []string {
	if len(fields) > 0 {
		values := make([]string, 0, len(fields))
		for _, field := range fields {
			if v, ok := s.mapper.Field(item, field); ok && v != nil {
				values = append(values, entities.FormatValue(v))
			}
		}
		return values
	}

	var values []string
	for _, field := range s.mapper.FieldNames(item) {
		v, _ := s.mapper.Field(item, field)
		if str, ok := v.(string); ok {
			values = append(values, str)
		}
	}
	return values
}

// baseQuery carries filters, sort and page range for the datastore-side strategies
func (s *SearchService[T]) baseQuery(opts entities.SearchOptions) repositories.Query {
	q := repositories.Query{
		Table:     s.cfg.Table,
		Where:     repositories.FilterPredicates(opts.Filters),
		WithCount: true,
	}
	if opts.Sort != nil && opts.Sort.Field != "" {
		q.Order = &repositories.Ordering{Field: opts.Sort.Field, Descending: opts.Sort.Descending()}
	}
	if opts.Pagination != nil {
		q.Offset = opts.Pagination.Offset()
		q.Limit = opts.Pagination.PageSize
	}
	return q
}

func (s *SearchService[T]) selectPage(ctx context.Context, q repositories.Query) ([]T, int, error) {
	rs, err := s.store.Select(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	items, err := mapRows(rs.Rows, s.mapper)
	if err != nil {
		return nil, 0, err
	}
	return items, int(rs.Total), nil
}

// candidates fetches the in-memory strategies' working set
func (s *SearchService[T]) candidates(ctx context.Context) ([]T, error) {
	rs, err := s.store.Select(ctx, repositories.Query{Table: s.cfg.Table, Limit: s.cfg.CandidateLimit})
	if err != nil {
		return nil, err
	}
	return mapRows(rs.Rows, s.mapper)
}
