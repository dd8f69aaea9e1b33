package repositories

import (
	"context"

	"github.com/ghxstship/search-service/internal/domain/entities"
)

type SearchAnalyticsRepository interface {
	// InsertBatch persists records in one bulk statement.
	InsertBatch(ctx context.Context, records []*entities.SearchAnalytics) error
	// List returns records inside the range, oldest first.
	List(ctx context.Context, r entities.TimeRange) ([]*entities.SearchAnalytics, error)
	// RecentQueries returns query strings starting with prefix (case-insensitive), newest first.
	RecentQueries(ctx context.Context, prefix string, limit int) ([]string, error)
}
