package services_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghxstship/search-service/internal/adapters/database"
	"github.com/ghxstship/search-service/internal/application/services"
	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// countingDatastore counts Select calls so tests can tell cache hits from misses
type countingDatastore struct {
	repositories.Datastore
	mu    sync.Mutex
	calls int
}

func (c *countingDatastore) Select(ctx context.Context, q repositories.Query) (*repositories.RowSet, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Datastore.Select(ctx, q)
}

func (c *countingDatastore) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// MockCacheProvider is an in-memory shared cache tier
type MockCacheProvider struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{data: make(map[string][]byte)}
}

func (m *MockCacheProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MockCacheProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCacheProvider) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *MockCacheProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type searchFixture struct {
	store     *countingDatastore
	memory    *database.MemoryDatastore
	repo      *database.MemorySearchAnalyticsRepository
	analytics *services.SearchAnalyticsService
	clock     *fakeClock
	service   *services.SearchService[entities.Row]
}

func newSearchFixture(t *testing.T, cfg services.SearchConfig, opts ...services.SearchServiceOption) *searchFixture {
	t.Helper()

	memory := database.NewMemoryDatastore()
	memory.Put("companies",
		entities.Row{"id": 1, "name": "Alpha Crew", "city": "Austin", "tier": "gold"},
		entities.Row{"id": 2, "name": "Beta Crew", "city": "Berlin", "tier": "silver"},
		entities.Row{"id": 3, "name": "Gamma Team", "city": "Austin", "tier": "gold"},
	)

	if cfg.Table == "" {
		cfg.Table = "companies"
	}
	clock := newFakeClock()
	repo := database.NewMemorySearchAnalyticsRepository()
	analytics := services.NewSearchAnalyticsService(repo, 50, services.WithAnalyticsClock(clock.Now))
	store := &countingDatastore{Datastore: memory}

	opts = append([]services.SearchServiceOption{services.WithClock(clock.Now), services.WithSessionID("session-1")}, opts...)
	return &searchFixture{
		store:     store,
		memory:    memory,
		repo:      repo,
		analytics: analytics,
		clock:     clock,
		service:   services.NewSearchService[entities.Row](store, services.RowMapper{}, analytics, cfg, opts...),
	}
}

func ids(items []entities.Row) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID())
	}
	return out
}

func TestSearchService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	t.Run("exact", func(t *testing.T) {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: "crew", Type: entities.SearchTypeExact, Fields: []string{"name"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, ids(result.Items))
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, entities.ComplexitySimple, result.Performance.QueryComplexity)
		assert.False(t, result.Performance.IndexUsed)
		assert.False(t, result.Performance.CacheHit)
	})

	t.Run("fuzzy", func(t *testing.T) {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: "alpha", Type: entities.SearchTypeFuzzy, Fields: []string{"name"}})
		require.NoError(t, err)
		require.NotEmpty(t, result.Items)
		assert.Equal(t, "1", result.Items[0].ID())
		assert.Equal(t, entities.ComplexityModerate, result.Performance.QueryComplexity)
	})

	t.Run("regex", func(t *testing.T) {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: "^Beta", Type: entities.SearchTypeRegex, Fields: []string{"name"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"2"}, ids(result.Items))
		assert.Equal(t, 1, result.Total)
		assert.Equal(t, entities.ComplexityComplex, result.Performance.QueryComplexity)
	})

	t.Run("fulltext", func(t *testing.T) {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: "team", Type: entities.SearchTypeFullText})
		require.NoError(t, err)
		assert.Equal(t, []string{"3"}, ids(result.Items))
		assert.True(t, result.Performance.IndexUsed)
	})

	assert.Equal(t, 4, f.analytics.Pending())
}

func TestSearchService_DefaultsToExact(t *testing.T) {
	f := newSearchFixture(t, services.SearchConfig{})

	result, err := f.service.Search(context.Background(), entities.SearchOptions{Query: "austin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(result.Items))
}

func TestSearchService_PaginationEnvelope(t *testing.T) {
	ctx := context.Background()
	types := []entities.SearchType{
		entities.SearchTypeExact,
		entities.SearchTypeFuzzy,
		entities.SearchTypeRegex,
		entities.SearchTypeFullText,
	}
	queries := map[entities.SearchType]string{
		entities.SearchTypeExact:    "a",
		entities.SearchTypeFuzzy:    "crew",
		entities.SearchTypeRegex:    "a",
		entities.SearchTypeFullText: "a",
	}

	for _, st := range types {
		t.Run(string(st)+" without pagination", func(t *testing.T) {
			f := newSearchFixture(t, services.SearchConfig{})
			result, err := f.service.Search(ctx, entities.SearchOptions{Query: queries[st], Type: st})
			require.NoError(t, err)
			assert.Len(t, result.Items, result.Total)
			assert.Equal(t, 1, result.Page)
			assert.Equal(t, result.Total, result.PageSize)
			assert.Equal(t, 1, result.TotalPages)
		})

		t.Run(string(st)+" with pagination", func(t *testing.T) {
			f := newSearchFixture(t, services.SearchConfig{})
			for page := 1; page <= 3; page++ {
				result, err := f.service.Search(ctx, entities.SearchOptions{
					Query:      queries[st],
					Type:       st,
					Pagination: &entities.Pagination{Page: page, PageSize: 1},
				})
				require.NoError(t, err)
				assert.LessOrEqual(t, len(result.Items), 1)
				assert.Equal(t, page, result.Page)
				assert.Equal(t, int(math.Ceil(float64(result.Total)/1)), result.TotalPages)
			}
		})
	}
}

func TestSearchService_ExtremePagination(t *testing.T) {
	ctx := context.Background()
	queries := map[entities.SearchType]string{
		entities.SearchTypeExact:    "crew",
		entities.SearchTypeFuzzy:    "crew",
		entities.SearchTypeRegex:    "crew",
		entities.SearchTypeFullText: "crew",
	}

	for st, query := range queries {
		t.Run(string(st)+" page beyond int range", func(t *testing.T) {
			f := newSearchFixture(t, services.SearchConfig{})
			p := &entities.Pagination{Page: math.MaxInt64/2 + 2, PageSize: 2}

			var result *entities.SearchResult[entities.Row]
			require.NotPanics(t, func() {
				var err error
				result, err = f.service.Search(ctx, entities.SearchOptions{Query: query, Type: st, Pagination: p})
				require.NoError(t, err)
			})
			assert.NotNil(t, result.Items)
			assert.Empty(t, result.Items)
			assert.Equal(t, p.Page, result.Page)
			assert.Equal(t, int(math.Ceil(float64(result.Total)/2)), result.TotalPages)
		})

		t.Run(string(st)+" page size of MaxInt64", func(t *testing.T) {
			f := newSearchFixture(t, services.SearchConfig{})
			result, err := f.service.Search(ctx, entities.SearchOptions{
				Query:      query,
				Type:       st,
				Pagination: &entities.Pagination{Page: 1, PageSize: math.MaxInt64},
			})
			require.NoError(t, err)
			assert.Len(t, result.Items, result.Total)
			if result.Total > 0 {
				assert.Equal(t, 1, result.TotalPages)
			}
		})
	}
}

func TestSearchService_CacheHit(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})
	opts := entities.SearchOptions{
		Query:     "crew",
		Type:      entities.SearchTypeRegex,
		Fields:    []string{"name"},
		Highlight: true,
	}

	first, err := f.service.Search(ctx, opts)
	require.NoError(t, err)
	calls := f.store.Calls()

	second, err := f.service.Search(ctx, opts)
	require.NoError(t, err)

	assert.Equal(t, calls, f.store.Calls(), "cache hit must not query the datastore")
	assert.True(t, second.Performance.CacheHit)
	assert.False(t, first.Performance.CacheHit)
	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.Highlights, second.Highlights)
	assert.Equal(t, first.Facets, second.Facets)
	assert.Equal(t, first.Performance.Duration, second.Performance.Duration)

	// hits are not recorded as new searches
	assert.Equal(t, 1, f.analytics.Pending())
}

func TestSearchService_CacheResultsAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})
	opts := entities.SearchOptions{Query: "crew", Fields: []string{"name"}}

	first, err := f.service.Search(ctx, opts)
	require.NoError(t, err)
	first.Items[0] = entities.Row{"id": 99}

	second, err := f.service.Search(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(second.Items))
}

func TestSearchService_CacheKeyIncludesPagination(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	page1, err := f.service.Search(ctx, entities.SearchOptions{
		Query:      "crew",
		Type:       entities.SearchTypeExact,
		Pagination: &entities.Pagination{Page: 1, PageSize: 1},
	})
	require.NoError(t, err)

	page2, err := f.service.Search(ctx, entities.SearchOptions{
		Query:      "crew",
		Type:       entities.SearchTypeExact,
		Pagination: &entities.Pagination{Page: 2, PageSize: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, ids(page1.Items))
	assert.Equal(t, []string{"2"}, ids(page2.Items))
	assert.False(t, page2.Performance.CacheHit)
	assert.Equal(t, 2, page2.Page)
}

func TestSearchService_CacheExpiry(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{CacheTTL: time.Minute})
	opts := entities.SearchOptions{Query: "crew"}

	_, err := f.service.Search(ctx, opts)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	hit, err := f.service.Search(ctx, opts)
	require.NoError(t, err)
	assert.True(t, hit.Performance.CacheHit)

	f.clock.Advance(time.Second)
	miss, err := f.service.Search(ctx, opts)
	require.NoError(t, err)
	assert.False(t, miss.Performance.CacheHit)
}

func TestSearchService_CacheEvictsOldestInserted(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{CacheSize: 2})
	search := func(q string) *entities.SearchResult[entities.Row] {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: q})
		require.NoError(t, err)
		return result
	}

	search("alpha")
	search("beta")
	assert.True(t, search("alpha").Performance.CacheHit)

	// reading alpha does not refresh it, so it is still the oldest
	search("gamma")
	assert.Equal(t, 2, f.service.CachedEntries())
	assert.True(t, search("beta").Performance.CacheHit)
	assert.False(t, search("alpha").Performance.CacheHit)
}

func TestSearchService_InvalidRegex(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	result, err := f.service.Search(ctx, entities.SearchOptions{Query: "[a-", Type: entities.SearchTypeRegex})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidPattern))
	assert.Equal(t, 0, f.service.CachedEntries())
	assert.Equal(t, 0, f.analytics.Pending())
	assert.Equal(t, 0, f.store.Calls())
}

func TestSearchService_Validation(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	tests := []struct {
		name string
		opts entities.SearchOptions
	}{
		{"unknown type", entities.SearchOptions{Query: "crew", Type: "semantic"}},
		{"page zero", entities.SearchOptions{Query: "crew", Pagination: &entities.Pagination{Page: 0, PageSize: 10}}},
		{"page size zero", entities.SearchOptions{Query: "crew", Pagination: &entities.Pagination{Page: 1, PageSize: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Search(ctx, tt.opts)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}
	assert.Equal(t, 0, f.analytics.Pending())
}

func TestSearchService_DatastoreErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})
	f.memory.FailWith(errors.New("connection refused"))

	for _, st := range []entities.SearchType{entities.SearchTypeExact, entities.SearchTypeFuzzy, entities.SearchTypeRegex, entities.SearchTypeFullText} {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: "crew", Type: st})
		require.Error(t, err, st)
		assert.Nil(t, result)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDatastore), st)
	}
	assert.Equal(t, 0, f.service.CachedEntries())
	assert.Equal(t, 0, f.analytics.Pending())
}

func TestSearchService_UnknownTable(t *testing.T) {
	f := newSearchFixture(t, services.SearchConfig{Table: "missing"})

	_, err := f.service.Search(context.Background(), entities.SearchOptions{Query: "crew"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestSearchService_AnalyticsBatching(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	for i := 0; i < 49; i++ {
		_, err := f.service.Search(ctx, entities.SearchOptions{Query: fmt.Sprintf("query-%d", i)})
		require.NoError(t, err)
	}
	assert.Equal(t, 49, f.analytics.Pending())
	assert.Equal(t, 0, f.repo.Inserts())

	_, err := f.service.Search(ctx, entities.SearchOptions{Query: "query-49"})
	require.NoError(t, err)
	assert.Equal(t, 0, f.analytics.Pending())
	assert.Equal(t, 1, f.repo.Inserts())
	assert.Equal(t, 50, f.repo.Len())
}

func TestSearchService_AnalyticsFlushFailureIsAbsorbed(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})
	f.repo.FailWith(errors.New("disk full"))

	for i := 0; i < 50; i++ {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: fmt.Sprintf("query-%d", i)})
		require.NoError(t, err)
		require.NotNil(t, result)
	}
	assert.Equal(t, 50, f.analytics.Pending())
	assert.Equal(t, 0, f.repo.Len())

	f.repo.FailWith(nil)
	require.NoError(t, f.analytics.FlushAnalytics(ctx))
	assert.Equal(t, 50, f.repo.Len())
	assert.Equal(t, 0, f.analytics.Pending())
}

func TestSearchService_AnalyticsRecord(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})
	userID := "user-7"

	_, err := f.service.Search(services.WithSearchSession(ctx, services.SearchSession{SessionID: "browser-1", UserID: &userID}),
		entities.SearchOptions{Query: "crew"})
	require.NoError(t, err)
	_, err = f.service.Search(ctx, entities.SearchOptions{Query: "nothing matches"})
	require.NoError(t, err)

	require.NoError(t, f.analytics.FlushAnalytics(ctx))
	records, err := f.repo.List(ctx, entities.TimeRange{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "crew", records[0].Query)
	assert.Equal(t, 2, records[0].ResultCount)
	assert.Equal(t, "browser-1", records[0].SessionID)
	require.NotNil(t, records[0].UserID)
	assert.Equal(t, "user-7", *records[0].UserID)
	assert.Equal(t, f.clock.Now(), records[0].Timestamp)
	assert.Empty(t, records[0].ClickedResults)
	assert.False(t, records[0].Abandoned)

	assert.Equal(t, "session-1", records[1].SessionID)
	assert.Nil(t, records[1].UserID)
	assert.Equal(t, 0, records[1].ResultCount)
}

func TestSearchService_FuzzyExactValueRanks(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	for _, name := range []string{"Alpha Crew", "Beta Crew", "Gamma Team"} {
		result, err := f.service.Search(ctx, entities.SearchOptions{Query: name, Type: entities.SearchTypeFuzzy})
		require.NoError(t, err)

		var names []string
		for _, item := range result.Items {
			names = append(names, item["name"].(string))
		}
		assert.Contains(t, names, name)
		assert.Equal(t, name, names[0])
	}
}

func TestSearchService_FuzzyFiltersSortAndHighlights(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	result, err := f.service.Search(ctx, entities.SearchOptions{
		Query:     "crew",
		Type:      entities.SearchTypeFuzzy,
		Fields:    []string{"name"},
		Filters:   entities.Filters{"tier": []any{"gold", "silver"}},
		Sort:      &entities.SortOptions{Field: "name", Direction: entities.SortDesc},
		Highlight: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "1"}, ids(result.Items))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, []string{"Beta Crew"}, result.Highlights["2"])
	assert.Equal(t, []string{"Alpha Crew"}, result.Highlights["1"])

	filtered, err := f.service.Search(ctx, entities.SearchOptions{
		Query:   "crew",
		Type:    entities.SearchTypeFuzzy,
		Fields:  []string{"name"},
		Filters: entities.Filters{"city": "Berlin"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(filtered.Items))
	assert.Equal(t, 1, filtered.Total)
}

func TestSearchService_RegexAllStringFieldsAndHighlights(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	result, err := f.service.Search(ctx, entities.SearchOptions{
		Query:     "aus",
		Type:      entities.SearchTypeRegex,
		Sort:      &entities.SortOptions{Field: "id", Direction: entities.SortDesc},
		Highlight: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"3", "1"}, ids(result.Items))
	assert.Equal(t, []string{"Austin"}, result.Highlights["3"])
}

func TestSearchService_FullTextFacets(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	result, err := f.service.Search(ctx, entities.SearchOptions{
		Query:   "crew",
		Type:    entities.SearchTypeFullText,
		Filters: entities.Filters{"tier": "gold"},
		Facets:  []string{"tier", "city"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, ids(result.Items))
	assert.Equal(t, entities.ComplexityModerate, result.Performance.QueryComplexity)

	// facets sample the whole table, not the filtered result
	assert.Equal(t, []entities.FacetValue{
		{Value: "gold", Count: 2, Selected: true},
		{Value: "silver", Count: 1},
	}, result.Facets["tier"])
	assert.Equal(t, []entities.FacetValue{
		{Value: "Austin", Count: 2},
		{Value: "Berlin", Count: 1},
	}, result.Facets["city"])
}

func TestSearchService_FacetsKeepTopTen(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})
	for i := 0; i < 12; i++ {
		f.memory.Append("companies", entities.Row{"id": 100 + i, "name": "Crew", "city": fmt.Sprintf("city-%02d", i)})
	}

	result, err := f.service.Search(ctx, entities.SearchOptions{Query: "crew", Type: entities.SearchTypeFullText, Facets: []string{"city"}})
	require.NoError(t, err)

	require.Len(t, result.Facets["city"], 10)
	assert.Equal(t, "Austin", result.Facets["city"][0].Value)
	assert.Equal(t, 2, result.Facets["city"][0].Count)
	assert.Equal(t, "Berlin", result.Facets["city"][1].Value)
	assert.Equal(t, "city-00", result.Facets["city"][2].Value)
}

func TestSearchService_SharedCache(t *testing.T) {
	ctx := context.Background()
	shared := NewMockCacheProvider()
	first := newSearchFixture(t, services.SearchConfig{}, services.WithSharedCache(shared))
	second := newSearchFixture(t, services.SearchConfig{}, services.WithSharedCache(shared))
	opts := entities.SearchOptions{Query: "crew", Fields: []string{"name"}}

	_, err := first.service.Search(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.Len())

	result, err := second.service.Search(ctx, opts)
	require.NoError(t, err)
	assert.True(t, result.Performance.CacheHit)
	assert.Equal(t, 0, second.store.Calls())
	assert.Equal(t, []string{"1", "2"}, ids(result.Items))

	require.NoError(t, second.service.InvalidateCache(ctx))
	assert.Equal(t, 0, shared.Len())
	assert.Equal(t, 0, second.service.CachedEntries())
}

func TestSearchService_Warm(t *testing.T) {
	ctx := context.Background()
	f := newSearchFixture(t, services.SearchConfig{})

	require.NoError(t, f.service.Warm(ctx, entities.SearchOptions{Query: "crew"}))
	assert.Equal(t, 0, f.analytics.Pending())

	result, err := f.service.Search(ctx, entities.SearchOptions{Query: "crew"})
	require.NoError(t, err)
	assert.True(t, result.Performance.CacheHit)
}

type company struct {
	ID   int
	Name string
}

type companyMapper struct{}

func (companyMapper) FromRow(row entities.Row) (company, error) {
	id, ok := row["id"].(int)
	if !ok {
		return company{}, fmt.Errorf("unexpected id %v", row["id"])
	}
	name, _ := row["name"].(string)
	return company{ID: id, Name: name}, nil
}

func (companyMapper) ID(c company) string { return fmt.Sprint(c.ID) }

func (companyMapper) Field(c company, field string) (any, bool) {
	switch field {
	case "id":
		return c.ID, true
	case "name":
		return c.Name, true
	}
	return nil, false
}

func (companyMapper) FieldNames(company) []string { return []string{"name"} }

func TestSearchService_TypedRecords(t *testing.T) {
	ctx := context.Background()
	memory := database.NewMemoryDatastore()
	memory.Put("companies",
		entities.Row{"id": 1, "name": "Alpha Crew"},
		entities.Row{"id": 2, "name": "Beta Crew"},
	)
	analytics := services.NewSearchAnalyticsService(database.NewMemorySearchAnalyticsRepository(), 0)
	svc := services.NewSearchService[company](memory, companyMapper{}, analytics, services.SearchConfig{Table: "companies"})

	result, err := svc.Search(ctx, entities.SearchOptions{Query: "beta", Type: entities.SearchTypeFuzzy, Highlight: true})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, company{ID: 2, Name: "Beta Crew"}, result.Items[0])
	assert.Equal(t, []string{"Beta Crew"}, result.Highlights["2"])
}

func TestSearchService_ConcurrentUse(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		cacheSize int
		batchSize int
	}{
		{"tiny cache and batch", 40, 2, 5},
		{"batch of one", 16, 1, 1},
		{"default cache", 24, 0, 7},
	}

	types := []entities.SearchType{
		entities.SearchTypeExact,
		entities.SearchTypeFuzzy,
		entities.SearchTypeRegex,
		entities.SearchTypeFullText,
	}
	queries := []string{"crew", "alpha", "team", "austin", "beta"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()

			memory := database.NewMemoryDatastore()
			memory.Put("companies",
				entities.Row{"id": 1, "name": "Alpha Crew", "city": "Austin"},
				entities.Row{"id": 2, "name": "Beta Crew", "city": "Berlin"},
				entities.Row{"id": 3, "name": "Gamma Team", "city": "Austin"},
			)
			repo := database.NewMemorySearchAnalyticsRepository()
			analytics := services.NewSearchAnalyticsService(repo, tt.batchSize)
			svc := services.NewSearchService[entities.Row](memory, services.RowMapper{}, analytics,
				services.SearchConfig{Table: "companies", CacheSize: tt.cacheSize, CacheTTL: time.Minute})

			var misses atomic.Int64
			var g errgroup.Group
			for w := 0; w < tt.workers; w++ {
				g.Go(func() error {
					for i := 0; i < 10; i++ {
						query := queries[(w+i)%len(queries)]
						result, err := svc.Search(ctx, entities.SearchOptions{
							Query:      query,
							Type:       types[(w*3+i)%len(types)],
							Pagination: &entities.Pagination{Page: 1 + i%2, PageSize: 2},
						})
						if err != nil {
							return err
						}
						if !result.Performance.CacheHit {
							misses.Add(1)
						}

						switch i % 4 {
						case 0:
							svc.TrackClick(query, "1")
						case 1:
							if _, err := svc.GetSuggestions(ctx, query[:1], 5); err != nil {
								return err
							}
						case 2:
							if err := analytics.FlushAnalytics(ctx); err != nil {
								return err
							}
						case 3:
							svc.TrackRefinement(query, query+" tour")
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			metrics, err := svc.GetSearchMetrics(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 0, analytics.Pending())
			assert.EqualValues(t, misses.Load(), metrics.TotalSearches)
			assert.EqualValues(t, misses.Load(), repo.Len())
			assert.LessOrEqual(t, svc.CachedEntries(), max(tt.cacheSize, services.DefaultCacheSize))
		})
	}
}
