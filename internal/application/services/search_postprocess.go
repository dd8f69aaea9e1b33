package services

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ghxstship/search-service/internal/domain/entities"
)

// highlightRadius is the number of characters kept either side of a match
const highlightRadius = 20

// applyFilters keeps items whose fields equal the filter value, or any of the
// values when the filter is a list. Values compare in canonical string form.
func applyFilters[T any](items []T, filters entities.Filters, mapper RecordMapper[T]) []T {
	if len(filters) == 0 {
		return items
	}

	accepted := filterSets(filters)
	out := make([]T, 0, len(items))
	for _, item := range items {
		if matchesFilters(item, accepted, mapper) {
			out = append(out, item)
		}
	}
	return out
}

func filterSets(filters entities.Filters) map[string]map[string]struct{} {
	accepted := make(map[string]map[string]struct{}, len(filters))
	for field, raw := range filters {
		values, _ := entities.FilterValues(raw)
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[entities.FormatValue(v)] = struct{}{}
		}
		accepted[field] = set
	}
	return accepted
}

func matchesFilters[T any](item T, accepted map[string]map[string]struct{}, mapper RecordMapper[T]) bool {
	for field, set := range accepted {
		v, ok := mapper.Field(item, field)
		if !ok {
			return false
		}
		if _, hit := set[entities.FormatValue(v)]; !hit {
			return false
		}
	}
	return true
}

// sortItems stable-sorts in place. Missing values always sort last.
func sortItems[T any](items []T, opts *entities.SortOptions, mapper RecordMapper[T]) {
	sortSlice(items, opts, mapper.Field)
}

func sortSlice[E any](elems []E, opts *entities.SortOptions, field func(E, string) (any, bool)) {
	if opts == nil || opts.Field == "" {
		return
	}
	desc := opts.Descending()
	sort.SliceStable(elems, func(i, j int) bool {
		a, aok := field(elems[i], opts.Field)
		b, bok := field(elems[j], opts.Field)
		aok, bok = aok && a != nil, bok && b != nil
		switch {
		case !aok || !bok:
			return aok && !bok
		case desc:
			return compareForSort(a, b) > 0
		default:
			return compareForSort(a, b) < 0
		}
	})
}

// compareForSort orders numbers numerically, times chronologically and text case-insensitively
func compareForSort(a, b any) int {
	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)
	if (isNumber(a) && isNumber(b)) || (aTime && bTime) {
		return entities.CompareValues(a, b)
	}
	return strings.Compare(strings.ToLower(entities.FormatValue(a)), strings.ToLower(entities.FormatValue(b)))
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint64, float32, float64:
		return true
	}
	return false
}

// paginate slices out the requested page; nil pagination returns everything
func paginate[T any](items []T, p *entities.Pagination) []T {
	if p == nil {
		return items
	}
	start, end := p.Bounds(len(items))
	if start == end {
		return []T{}
	}
	return items[start:end]
}

// newResult fills the pagination envelope around one page of items
func newResult[T any](page []T, total int, p *entities.Pagination) *entities.SearchResult[T] {
	if page == nil {
		page = []T{}
	}
	result := &entities.SearchResult[T]{Items: page, Total: total}
	if p == nil {
		result.Page = 1
		result.PageSize = total
		result.TotalPages = 1
		return result
	}
	result.Page = p.Page
	result.PageSize = p.PageSize
	result.TotalPages = p.TotalPages(total)
	return result
}

// regexHighlights returns one entry per matching field: the context window
// around every match, joined with "...".
func regexHighlights(re *regexp.Regexp, values []string) []string {
	var out []string
	for _, text := range values {
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			continue
		}
		snippets := make([]string, 0, len(locs))
		for _, loc := range locs {
			snippets = append(snippets, snippet(text, loc[0], loc[1]))
		}
		out = append(out, strings.Join(snippets, "..."))
	}
	return out
}

// snippet returns text[start:end] widened by highlightRadius runes on each side
func snippet(text string, start, end int) string {
	from := start
	for n := 0; n < highlightRadius && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < highlightRadius && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return text[from:to]
}
