package entities

import (
	"math"
	"sort"
	"strings"
)

// SearchType selects one of the matching strategies.
type SearchType string

const (
	SearchTypeExact    SearchType = "exact"
	SearchTypeFuzzy    SearchType = "fuzzy"
	SearchTypeRegex    SearchType = "regex"
	SearchTypeFullText SearchType = "fulltext"
)

// Valid reports whether t names a known strategy. The empty type is valid and means exact.
func (t SearchType) Valid() bool {
	switch t {
	case "", SearchTypeExact, SearchTypeFuzzy, SearchTypeRegex, SearchTypeFullText:
		return true
	}
	return false
}

// OrDefault returns exact for the empty type.
func (t SearchType) OrDefault() SearchType {
	if t == "" {
		return SearchTypeExact
	}
	return t
}

// SortDirection is asc or desc.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortOptions orders results by a single field.
type SortOptions struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Descending reports whether the direction is desc (anything else sorts ascending).
func (s SortOptions) Descending() bool {
	return strings.EqualFold(string(s.Direction), string(SortDesc))
}

// Pagination is 1-based.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// Offset returns the index of the first row on the page. It saturates at
// math.MaxInt rather than wrapping.
func (p Pagination) Offset() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Bounds returns the slice range of the page within n items, clamped to [0, n].
func (p Pagination) Bounds(n int) (start, end int) {
	start = p.Offset()
	if start >= n {
		return n, n
	}
	if p.PageSize < 1 || p.PageSize >= n-start {
		return start, n
	}
	return start, start + p.PageSize
}

// TotalPages is ceil(total/PageSize).
func (p Pagination) TotalPages(total int) int {
	if p.PageSize < 1 || total <= 0 {
		return 0
	}
	pages := total / p.PageSize
	if total%p.PageSize != 0 {
		pages++
	}
	return pages
}

// Filters maps a field to an exact value or to a list of acceptable values.
type Filters map[string]any

// Fields returns the filter keys in sorted order.
func (f Filters) Fields() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SearchOptions is a search request.
type SearchOptions struct {
	Query      string       `json:"query"`
	Type       SearchType   `json:"type,omitempty"`
	Fields     []string     `json:"fields,omitempty"`
	Filters    Filters      `json:"filters,omitempty"`
	Sort       *SortOptions `json:"sort,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
	Highlight  bool         `json:"highlight,omitempty"`
	Facets     []string     `json:"facets,omitempty"`
}

// QueryComplexity is a coarse cost classification of a request.
type QueryComplexity string

const (
	ComplexitySimple   QueryComplexity = "simple"
	ComplexityModerate QueryComplexity = "moderate"
	ComplexityComplex  QueryComplexity = "complex"
)

// SearchPerformance annotates how a result was produced.
type SearchPerformance struct {
	// Duration is in milliseconds. Cache hits report the duration of the original computation.
	Duration        float64         `json:"duration"`
	IndexUsed       bool            `json:"indexUsed"`
	CacheHit        bool            `json:"cacheHit"`
	QueryComplexity QueryComplexity `json:"queryComplexity"`
}

// FacetValue is one bucket of a facet breakdown.
type FacetValue struct {
	Value    string `json:"value"`
	Count    int    `json:"count"`
	Selected bool   `json:"selected"`
}

// SearchResult is the uniform envelope returned by every strategy.
type SearchResult[T any] struct {
	Items       []T                     `json:"items"`
	Total       int                     `json:"total"`
	Page        int                     `json:"page"`
	PageSize    int                     `json:"pageSize"`
	TotalPages  int                     `json:"totalPages"`
	Facets      map[string][]FacetValue `json:"facets,omitempty"`
	Highlights  map[string][]string     `json:"highlights,omitempty"`
	Performance SearchPerformance       `json:"performance"`
}
