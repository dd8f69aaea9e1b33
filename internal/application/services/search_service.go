package services

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/providers"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Search defaults
const (
	DefaultCandidateLimit   = 1000
	DefaultFacetSampleLimit = 1000
	DefaultFullTextColumn   = "fts"
)

// SearchConfig configures one dispatcher. Zero values take the defaults.
type SearchConfig struct {
	Table            string
	CacheTTL         time.Duration
	CacheSize        int
	CandidateLimit   int
	FacetSampleLimit int
	FuzzyThreshold   float64
	FullTextColumn   string
}

type serviceOptions struct {
	shared    providers.CacheProvider
	metrics   *observability.Metrics
	now       func() time.Time
	sessionID string
}

// SearchServiceOption configures a SearchService
type SearchServiceOption func(*serviceOptions)

// WithSharedCache adds a second cache tier shared between processes
func WithSharedCache(cache providers.CacheProvider) SearchServiceOption {
	return func(o *serviceOptions) { o.shared = cache }
}

// WithMetrics records search metrics
func WithMetrics(m *observability.Metrics) SearchServiceOption {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithClock overrides time.Now for cache expiry and analytics timestamps
func WithClock(now func() time.Time) SearchServiceOption {
	return func(o *serviceOptions) { o.now = now }
}

// WithSessionID sets the session recorded when the context carries none
func WithSessionID(id string) SearchServiceOption {
	return func(o *serviceOptions) { o.sessionID = id }
}

// SearchService dispatches searches over one table to the exact, fuzzy, regex
// or full-text strategy, caches results and records analytics. The cache and
// analytics buffer belong to this instance.
type SearchService[T any] struct {
	cfg       SearchConfig
	store     repositories.Datastore
	mapper    RecordMapper[T]
	analytics *SearchAnalyticsService
	cache     *searchCache[T]
	fuzzy     *FuzzyMatcher
	metrics   *observability.Metrics
	now       func() time.Time
	sessionID string
}

// NewSearchService creates a dispatcher for cfg.Table
func NewSearchService[T any](
	store repositories.Datastore,
	mapper RecordMapper[T],
	analytics *SearchAnalyticsService,
	cfg SearchConfig,
	opts ...SearchServiceOption,
) *SearchService[T] {
	o := serviceOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.New().String()
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCandidateLimit
	}
	if cfg.FacetSampleLimit <= 0 {
		cfg.FacetSampleLimit = DefaultFacetSampleLimit
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.FullTextColumn == "" {
		cfg.FullTextColumn = DefaultFullTextColumn
	}

	return &SearchService[T]{
		cfg:       cfg,
		store:     store,
		mapper:    mapper,
		analytics: analytics,
		cache:     newSearchCache[T](cfg.CacheSize, cfg.CacheTTL, o.now, o.shared, fmt.Sprintf("search:%s:", cfg.Table)),
		fuzzy:     NewFuzzyMatcher(cfg.FuzzyThreshold),
		metrics:   o.metrics,
		now:       o.now,
		sessionID: o.sessionID,
	}
}

// Table returns the table this dispatcher searches
func (s *SearchService[T]) Table() string {
	return s.cfg.Table
}

// Analytics returns the dispatcher's analytics buffer
func (s *SearchService[T]) Analytics() *SearchAnalyticsService {
	return s.analytics
}

// Search runs one request. Invalid regex patterns fail before the cache or
// analytics buffer is touched. Datastore errors are returned unchanged.
func (s *SearchService[T]) Search(ctx context.Context, opts entities.SearchOptions) (*entities.SearchResult[T], error) {
	return s.search(ctx, opts, true)
}

// Warm populates the cache for opts without recording analytics
func (s *SearchService[T]) Warm(ctx context.Context, opts entities.SearchOptions) error {
	_, err := s.search(ctx, opts, false)
	return err
}

func (s *SearchService[T]) search(ctx context.Context, opts entities.SearchOptions, record bool) (*entities.SearchResult[T], error) {
	ctx, span := observability.StartSpan(ctx, "SearchService.Search")
	defer span.End()

	searchType := opts.Type.OrDefault()
	observability.SetSpanAttributes(span,
		attribute.String("search.table", s.cfg.Table),
		attribute.String("search.type", string(searchType)),
	)

	if err := validateOptions(opts); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	var re *regexp.Regexp
	if searchType == entities.SearchTypeRegex {
		compiled, err := regexp.Compile("(?i)" + opts.Query)
		if err != nil {
			appErr := apperrors.NewInvalidPatternError(opts.Query, err)
			observability.RecordError(span, appErr)
			return nil, appErr
		}
		re = compiled
	}

	key := cacheKey(opts)
	if key != "" {
		if cached, ok := s.cache.get(ctx, key); ok {
			result := copyResult(cached)
			result.Performance.CacheHit = true
			span.SetAttributes(attribute.Bool("search.cache_hit", true))
			observability.RecordSearch(ctx, s.metrics, s.cfg.Table, string(searchType), true, result.Performance.Duration)
			return result, nil
		}
	}

	start := time.Now()
	var (
		result *entities.SearchResult[T]
		err    error
	)
	switch searchType {
	case entities.SearchTypeFuzzy:
		result, err = s.searchFuzzy(ctx, opts)
	case entities.SearchTypeRegex:
		result, err = s.searchRegex(ctx, opts, re)
	case entities.SearchTypeFullText:
		result, err = s.searchFullText(ctx, opts)
	default:
		result, err = s.searchExact(ctx, opts)
	}
	if err != nil {
		observability.RecordError(span, err)
		observability.LoggerFromContext(ctx).Error().Err(err).
			Str("table", s.cfg.Table).
			Str("type", string(searchType)).
			Msg("Search failed")
		return nil, err
	}

	result.Performance = entities.SearchPerformance{
		Duration:        float64(time.Since(start).Microseconds()) / 1000,
		IndexUsed:       searchType == entities.SearchTypeFullText,
		QueryComplexity: complexity(opts),
	}

	if key != "" {
		s.cache.set(ctx, key, copyResult(result))
	}
	if record {
		s.track(ctx, opts.Query, result)
	}

	span.SetAttributes(attribute.Int("search.total", result.Total))
	observability.RecordSearch(ctx, s.metrics, s.cfg.Table, string(searchType), false, result.Performance.Duration)

	return result, nil
}

// track buffers the analytics record and flushes once the batch is full.
// Flush failures stay buffered and never fail the search.
func (s *SearchService[T]) track(ctx context.Context, query string, result *entities.SearchResult[T]) {
	if s.analytics == nil {
		return
	}

	session, ok := SearchSessionFromContext(ctx)
	if !ok || session.SessionID == "" {
		session.SessionID = s.sessionID
	}

	pending := s.analytics.TrackSearch(&entities.SearchAnalytics{
		Query:       query,
		Timestamp:   s.now().UTC(),
		Duration:    result.Performance.Duration,
		ResultCount: result.Total,
		UserID:      session.UserID,
		SessionID:   session.SessionID,
	})
	if pending >= s.analytics.BatchSize() {
		_ = s.analytics.FlushAnalytics(ctx)
	}
}

// TrackClick records a result click against the latest search for query
func (s *SearchService[T]) TrackClick(query, resultID string) bool {
	return s.analytics != nil && s.analytics.TrackClick(query, resultID)
}

// TrackRefinement records that originalQuery was followed by refinedQuery
func (s *SearchService[T]) TrackRefinement(originalQuery, refinedQuery string) bool {
	return s.analytics != nil && s.analytics.TrackRefinement(originalQuery, refinedQuery)
}

// MarkAbandoned flags the latest search for query as abandoned
func (s *SearchService[T]) MarkAbandoned(query string) bool {
	return s.analytics != nil && s.analytics.MarkAbandoned(query)
}

// GetSearchMetrics aggregates stored analytics inside tr (nil means all time)
func (s *SearchService[T]) GetSearchMetrics(ctx context.Context, tr *entities.TimeRange) (*entities.SearchMetrics, error) {
	if s.analytics == nil {
		return aggregateMetrics(nil), nil
	}
	return s.analytics.GetSearchMetrics(ctx, tr)
}

// GetSuggestions returns recent queries starting with prefix
func (s *SearchService[T]) GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	if s.analytics == nil {
		return []string{}, nil
	}
	return s.analytics.GetSuggestions(ctx, prefix, limit)
}

// InvalidateCache drops every cached result for this table
func (s *SearchService[T]) InvalidateCache(ctx context.Context) error {
	return s.cache.purge(ctx)
}

// CachedEntries is the number of results held in the local cache
func (s *SearchService[T]) CachedEntries() int {
	return s.cache.len()
}

func validateOptions(opts entities.SearchOptions) error {
	if !opts.Type.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown search type %q", opts.Type))
	}
	if p := opts.Pagination; p != nil {
		if p.Page < 1 {
			return apperrors.NewValidationError("page must be at least 1")
		}
		if p.PageSize < 1 {
			return apperrors.NewValidationError("pageSize must be at least 1")
		}
	}
	return nil
}

func complexity(opts entities.SearchOptions) entities.QueryComplexity {
	switch {
	case opts.Type == entities.SearchTypeRegex:
		return entities.ComplexityComplex
	case opts.Type == entities.SearchTypeFuzzy || len(opts.Facets) > 0:
		return entities.ComplexityModerate
	default:
		return entities.ComplexitySimple
	}
}

// copyResult detaches the item slice and maps so cached results cannot be
// changed through a returned value.
func copyResult[T any](r *entities.SearchResult[T]) *entities.SearchResult[T] {
	c := *r
	c.Items = append(make([]T, 0, len(r.Items)), r.Items...)
	if r.Facets != nil {
		c.Facets = make(map[string][]entities.FacetValue, len(r.Facets))
		for k, v := range r.Facets {
			c.Facets[k] = append([]entities.FacetValue(nil), v...)
		}
	}
	if r.Highlights != nil {
		c.Highlights = maps.Clone(r.Highlights)
	}
	return &c
}
