package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/repositories"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/google/uuid"
)

// Analytics defaults
const (
	DefaultAnalyticsBatchSize = 50
	DefaultSuggestionLimit    = 10
	topQueryLimit             = 10
)

// SearchAnalyticsService buffers search records in process and writes them to
// the analytics table in batches. Records stay mutable (clicks, refinements,
// abandonment) only while buffered.
type SearchAnalyticsService struct {
	repo      repositories.SearchAnalyticsRepository
	batchSize int
	now       func() time.Time
	metrics   *observability.Metrics
	table     string

	mu      sync.Mutex
	pending []*entities.SearchAnalytics

	flushMu sync.Mutex
}

// AnalyticsOption configures a SearchAnalyticsService
type AnalyticsOption func(*SearchAnalyticsService)

// WithAnalyticsClock overrides time.Now
func WithAnalyticsClock(now func() time.Time) AnalyticsOption {
	return func(s *SearchAnalyticsService) { s.now = now }
}

// WithAnalyticsMetrics records flush failures
func WithAnalyticsMetrics(m *observability.Metrics, table string) AnalyticsOption {
	return func(s *SearchAnalyticsService) {
		s.metrics = m
		s.table = table
	}
}

// NewSearchAnalyticsService creates a service flushing every batchSize records
func NewSearchAnalyticsService(repo repositories.SearchAnalyticsRepository, batchSize int, opts ...AnalyticsOption) *SearchAnalyticsService {
	if batchSize <= 0 {
		batchSize = DefaultAnalyticsBatchSize
	}
	s := &SearchAnalyticsService{
		repo:      repo,
		batchSize: batchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BatchSize is the buffer length that triggers a flush
func (s *SearchAnalyticsService) BatchSize() int {
	return s.batchSize
}

// TrackSearch buffers a record and returns the number of pending records. No I/O.
func (s *SearchAnalyticsService) TrackSearch(record *entities.SearchAnalytics) int {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, record)
	return len(s.pending)
}

// TrackClick appends resultID to the newest buffered record for query.
// It reports false when that record has already been flushed.
func (s *SearchAnalyticsService) TrackClick(query, resultID string) bool {
	return s.updateLatest(query, func(r *entities.SearchAnalytics) {
		r.ClickedResults = append(r.ClickedResults, resultID)
	})
}

// TrackRefinement appends refinedQuery to the newest buffered record for originalQuery
func (s *SearchAnalyticsService) TrackRefinement(originalQuery, refinedQuery string) bool {
	return s.updateLatest(originalQuery, func(r *entities.SearchAnalytics) {
		r.Refinements = append(r.Refinements, refinedQuery)
	})
}

// MarkAbandoned flags the newest buffered record for query as abandoned
func (s *SearchAnalyticsService) MarkAbandoned(query string) bool {
	return s.updateLatest(query, func(r *entities.SearchAnalytics) {
		r.Abandoned = true
	})
}

func (s *SearchAnalyticsService) updateLatest(query string, update func(*entities.SearchAnalytics)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *entities.SearchAnalytics
	for _, r := range s.pending {
		if r.Query == query && (latest == nil || !r.Timestamp.Before(latest.Timestamp)) {
			latest = r
		}
	}
	if latest == nil {
		return false
	}
	update(latest)
	return true
}

// Pending returns the number of buffered records
func (s *SearchAnalyticsService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// FlushAnalytics writes the buffer in one batch. On failure the batch goes
// back in front of anything buffered since, and an AnalyticsFlush error is returned.
func (s *SearchAnalyticsService) FlushAnalytics(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	snapshot := make([]*entities.SearchAnalytics, len(batch))
	for i, r := range batch {
		snapshot[i] = r.Clone()
	}

	if err := s.repo.InsertBatch(ctx, snapshot); err != nil {
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()

		observability.RecordFlushFailure(ctx, s.metrics, s.table, len(batch))
		observability.LoggerFromContext(ctx).Error().Err(err).Int("batch_size", len(batch)).Msg("Analytics flush failed, batch re-queued")
		return apperrors.NewAnalyticsFlushError(len(batch), err)
	}

	observability.LoggerFromContext(ctx).Debug().Int("batch_size", len(batch)).Msg("Flushed search analytics")
	return nil
}

// StartPeriodicFlush flushes on every tick until ctx is cancelled
func (s *SearchAnalyticsService) StartPeriodicFlush(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.FlushAnalytics(ctx)
			}
		}
	}()
}

// Close performs a final flush
func (s *SearchAnalyticsService) Close(ctx context.Context) error {
	return s.FlushAnalytics(ctx)
}

// GetSearchMetrics flushes pending records, then aggregates the stored ones inside tr
func (s *SearchAnalyticsService) GetSearchMetrics(ctx context.Context, tr *entities.TimeRange) (*entities.SearchMetrics, error) {
	_ = s.FlushAnalytics(ctx)

	var r entities.TimeRange
	if tr != nil {
		r = *tr
	}
	records, err := s.repo.List(ctx, r)
	if err != nil {
		return nil, err
	}

	return aggregateMetrics(records), nil
}

type queryStats struct {
	count    int
	duration float64
	results  int
	clicked  int
}

func aggregateMetrics(records []*entities.SearchAnalytics) *entities.SearchMetrics {
	m := &entities.SearchMetrics{
		TopQueries:        []entities.QueryMetric{},
		ZeroResultQueries: []string{},
	}
	total := len(records)
	if total == 0 {
		return m
	}

	var duration float64
	var results, clicked, refined, abandoned int
	byQuery := make(map[string]*queryStats)
	zeroSeen := make(map[string]struct{})

	for _, r := range records {
		duration += r.Duration
		results += r.ResultCount
		if len(r.ClickedResults) > 0 {
			clicked++
		}
		if len(r.Refinements) > 0 {
			refined++
		}
		if r.Abandoned {
			abandoned++
		}

		qs, ok := byQuery[r.Query]
		if !ok {
			qs = &queryStats{}
			byQuery[r.Query] = qs
		}
		qs.count++
		qs.duration += r.Duration
		qs.results += r.ResultCount
		if len(r.ClickedResults) > 0 {
			qs.clicked++
		}

		if r.ResultCount == 0 {
			if _, seen := zeroSeen[r.Query]; !seen {
				zeroSeen[r.Query] = struct{}{}
				m.ZeroResultQueries = append(m.ZeroResultQueries, r.Query)
			}
		}
	}

	n := float64(total)
	m.TotalSearches = total
	m.AvgDuration = duration / n
	m.AvgResults = float64(results) / n
	m.ClickThroughRate = float64(clicked) / n
	m.RefinementRate = float64(refined) / n
	m.AbandonmentRate = float64(abandoned) / n

	for q, qs := range byQuery {
		c := float64(qs.count)
		m.TopQueries = append(m.TopQueries, entities.QueryMetric{
			Query:            q,
			Count:            qs.count,
			AvgDuration:      qs.duration / c,
			AvgResults:       float64(qs.results) / c,
			ClickThroughRate: float64(qs.clicked) / c,
		})
	}
	sort.Slice(m.TopQueries, func(i, j int) bool {
		a, b := m.TopQueries[i], m.TopQueries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Query < b.Query
	})
	if len(m.TopQueries) > topQueryLimit {
		m.TopQueries = m.TopQueries[:topQueryLimit]
	}

	return m
}

// GetSuggestions returns past queries starting with prefix (case-insensitive),
// newest first, de-duplicated case-insensitively keeping the newest spelling.
// Buffered records are consulted before the table.
func (s *SearchAnalyticsService) GetSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	lowerPrefix := strings.ToLower(prefix)

	s.mu.Lock()
	buffered := make([]*entities.SearchAnalytics, 0, len(s.pending))
	for _, r := range s.pending {
		if strings.HasPrefix(strings.ToLower(r.Query), lowerPrefix) {
			buffered = append(buffered, r)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(buffered, func(i, j int) bool {
		return buffered[i].Timestamp.After(buffered[j].Timestamp)
	})

	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	add := func(q string) bool {
		key := strings.ToLower(q)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			out = append(out, q)
		}
		return len(out) >= limit
	}

	for _, r := range buffered {
		if add(r.Query) {
			return out, nil
		}
	}

	// case variants collapse here, so ask for more than we need
	stored, err := s.repo.RecentQueries(ctx, prefix, limit*4)
	if err != nil {
		return nil, err
	}
	for _, q := range stored {
		if add(q) {
			break
		}
	}

	return out, nil
}
