package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghxstship/search-service/internal/adapters/database"
	"github.com/ghxstship/search-service/internal/application/services"
	"github.com/ghxstship/search-service/internal/domain/entities"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalyticsFixture(t *testing.T) (*services.SearchAnalyticsService, *database.MemorySearchAnalyticsRepository, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	repo := database.NewMemorySearchAnalyticsRepository()
	return services.NewSearchAnalyticsService(repo, 50, services.WithAnalyticsClock(clock.Now)), repo, clock
}

func track(svc *services.SearchAnalyticsService, clock *fakeClock, query string, results int, duration float64) {
	svc.TrackSearch(&entities.SearchAnalytics{
		Query:       query,
		Timestamp:   clock.Now(),
		Duration:    duration,
		ResultCount: results,
		SessionID:   "s",
	})
	clock.Advance(time.Second)
}

func TestSearchAnalyticsService_EmptyMetrics(t *testing.T) {
	svc, _, _ := newAnalyticsFixture(t)

	metrics, err := svc.GetSearchMetrics(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, metrics.TotalSearches)
	assert.Zero(t, metrics.AvgDuration)
	assert.Zero(t, metrics.AvgResults)
	assert.Zero(t, metrics.ClickThroughRate)
	assert.Zero(t, metrics.RefinementRate)
	assert.Zero(t, metrics.AbandonmentRate)
	assert.NotNil(t, metrics.TopQueries)
	assert.Empty(t, metrics.TopQueries)
	assert.Empty(t, metrics.ZeroResultQueries)
}

func TestSearchAnalyticsService_GetSearchMetrics(t *testing.T) {
	ctx := context.Background()
	svc, repo, clock := newAnalyticsFixture(t)

	track(svc, clock, "truss", 4, 10)
	track(svc, clock, "hoist", 0, 20)
	track(svc, clock, "truss", 2, 30)
	track(svc, clock, "cable", 0, 40)
	track(svc, clock, "hoist", 0, 20)

	assert.True(t, svc.TrackClick("truss", "asset-1"))
	assert.True(t, svc.TrackRefinement("hoist", "chain hoist"))
	assert.True(t, svc.MarkAbandoned("cable"))

	metrics, err := svc.GetSearchMetrics(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Pending(), "metrics flush pending records first")
	assert.Equal(t, 5, repo.Len())

	assert.Equal(t, 5, metrics.TotalSearches)
	assert.InDelta(t, 24.0, metrics.AvgDuration, 1e-9)
	assert.InDelta(t, 1.2, metrics.AvgResults, 1e-9)
	assert.InDelta(t, 0.2, metrics.ClickThroughRate, 1e-9)
	assert.InDelta(t, 0.2, metrics.RefinementRate, 1e-9)
	assert.InDelta(t, 0.2, metrics.AbandonmentRate, 1e-9)
	assert.Equal(t, []string{"hoist", "cable"}, metrics.ZeroResultQueries)

	require.Len(t, metrics.TopQueries, 3)
	assert.Equal(t, "hoist", metrics.TopQueries[0].Query)
	assert.Equal(t, 2, metrics.TopQueries[0].Count)
	assert.Equal(t, "truss", metrics.TopQueries[1].Query)
	assert.InDelta(t, 20.0, metrics.TopQueries[1].AvgDuration, 1e-9)
	assert.InDelta(t, 3.0, metrics.TopQueries[1].AvgResults, 1e-9)
	assert.InDelta(t, 0.5, metrics.TopQueries[1].ClickThroughRate, 1e-9)
	assert.Equal(t, "cable", metrics.TopQueries[2].Query)
}

func TestSearchAnalyticsService_MetricsTimeRange(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newAnalyticsFixture(t)

	start := clock.Now()
	track(svc, clock, "early", 1, 1)
	clock.Advance(time.Hour)
	track(svc, clock, "late", 1, 1)

	metrics, err := svc.GetSearchMetrics(ctx, &entities.TimeRange{From: start.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, metrics.TopQueries, 1)
	assert.Equal(t, "late", metrics.TopQueries[0].Query)
}

func TestSearchAnalyticsService_TopQueriesCappedAtTen(t *testing.T) {
	svc, _, clock := newAnalyticsFixture(t)
	for _, q := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		track(svc, clock, q, 1, 1)
	}

	metrics, err := svc.GetSearchMetrics(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, metrics.TopQueries, 10)
	assert.Equal(t, "a", metrics.TopQueries[0].Query)
	assert.Equal(t, "j", metrics.TopQueries[9].Query)
}

func TestSearchAnalyticsService_SignalsTargetNewestBufferedRecord(t *testing.T) {
	ctx := context.Background()
	svc, repo, clock := newAnalyticsFixture(t)

	track(svc, clock, "truss", 1, 1)
	track(svc, clock, "truss", 1, 1)
	assert.True(t, svc.TrackClick("truss", "asset-9"))

	require.NoError(t, svc.FlushAnalytics(ctx))
	records, err := repo.List(ctx, entities.TimeRange{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Empty(t, records[0].ClickedResults)
	assert.Equal(t, []string{"asset-9"}, records[1].ClickedResults)

	// flushed records are immutable
	assert.False(t, svc.TrackClick("truss", "asset-10"))
	assert.False(t, svc.TrackRefinement("truss", "truss 3m"))
	assert.False(t, svc.MarkAbandoned("truss"))
	assert.False(t, svc.TrackClick("unknown", "asset-1"))
}

func TestSearchAnalyticsService_FlushFailureRequeuesInOrder(t *testing.T) {
	ctx := context.Background()
	svc, repo, clock := newAnalyticsFixture(t)

	track(svc, clock, "first", 1, 1)
	track(svc, clock, "second", 1, 1)

	repo.FailWith(errors.New("timeout"))
	err := svc.FlushAnalytics(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAnalyticsFlush))
	assert.Equal(t, 2, svc.Pending())

	track(svc, clock, "third", 1, 1)
	assert.True(t, svc.TrackClick("first", "r1"), "re-queued records stay mutable")

	repo.FailWith(nil)
	require.NoError(t, svc.FlushAnalytics(ctx))

	records, err := repo.List(ctx, entities.TimeRange{})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "first", records[0].Query)
	assert.Equal(t, []string{"r1"}, records[0].ClickedResults)
	assert.Equal(t, "third", records[2].Query)
	assert.Equal(t, 1, repo.Inserts())
}

func TestSearchAnalyticsService_FlushEmptyBufferIsNoop(t *testing.T) {
	svc, repo, _ := newAnalyticsFixture(t)

	require.NoError(t, svc.FlushAnalytics(context.Background()))
	assert.Equal(t, 0, repo.Inserts())
}

func TestSearchAnalyticsService_TrackSearchAssignsIDAndTimestamp(t *testing.T) {
	svc, _, clock := newAnalyticsFixture(t)
	rec := &entities.SearchAnalytics{Query: "truss"}

	assert.Equal(t, 1, svc.TrackSearch(rec))
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, clock.Now(), rec.Timestamp)
}

func TestSearchAnalyticsService_GetSuggestions(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newAnalyticsFixture(t)

	track(svc, clock, "truss 3m", 1, 1)
	track(svc, clock, "Truss", 1, 1)
	track(svc, clock, "hoist", 1, 1)
	require.NoError(t, svc.FlushAnalytics(ctx))

	track(svc, clock, "truss", 1, 1)
	track(svc, clock, "trussing", 1, 1)

	t.Run("buffer first then table, newest spelling wins", func(t *testing.T) {
		got, err := svc.GetSuggestions(ctx, "TRU", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"trussing", "truss", "truss 3m"}, got)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := svc.GetSuggestions(ctx, "tru", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"trussing", "truss"}, got)
	})

	t.Run("non-positive limit defaults", func(t *testing.T) {
		got, err := svc.GetSuggestions(ctx, "h", 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"hoist"}, got)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := svc.GetSuggestions(ctx, "zzz", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSearchAnalyticsService_PeriodicFlush(t *testing.T) {
	svc, repo, clock := newAnalyticsFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	track(svc, clock, "truss", 1, 1)
	svc.StartPeriodicFlush(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return repo.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, svc.Pending())
}

func TestSearchAnalyticsService_Close(t *testing.T) {
	svc, repo, clock := newAnalyticsFixture(t)
	track(svc, clock, "truss", 1, 1)

	require.NoError(t, svc.Close(context.Background()))
	assert.Equal(t, 1, repo.Len())
}
