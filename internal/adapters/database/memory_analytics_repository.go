package database

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ghxstship/search-service/internal/domain/entities"
	apperrors "github.com/ghxstship/search-service/pkg/errors"
	"github.com/google/uuid"
)

// MemorySearchAnalyticsRepository keeps analytics records in process
type MemorySearchAnalyticsRepository struct {
	mu      sync.RWMutex
	records []*entities.SearchAnalytics
	err     error
	inserts int
}

// NewMemorySearchAnalyticsRepository creates an empty repository
func NewMemorySearchAnalyticsRepository() *MemorySearchAnalyticsRepository {
	return &MemorySearchAnalyticsRepository{}
}

// FailWith makes every subsequent InsertBatch return err. Pass nil to recover.
func (r *MemorySearchAnalyticsRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// InsertBatch stores copies of the records
func (r *MemorySearchAnalyticsRepository) InsertBatch(ctx context.Context, records []*entities.SearchAnalytics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return apperrors.NewDatastoreError("failed to insert search analytics", r.err)
	}

	for _, rec := range records {
		c := rec.Clone()
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		r.records = append(r.records, c)
	}
	r.inserts++
	return nil
}

// List returns copies of records inside tr, oldest first
func (r *MemorySearchAnalyticsRepository) List(ctx context.Context, tr entities.TimeRange) ([]*entities.SearchAnalytics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.SearchAnalytics
	for _, rec := range r.records {
		if tr.Contains(rec.Timestamp) {
			out = append(out, rec.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// RecentQueries returns distinct queries starting with prefix, newest first
func (r *MemorySearchAnalyticsRepository) RecentQueries(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	r.mu.RLock()
	matched := make([]*entities.SearchAnalytics, 0)
	for _, rec := range r.records {
		if strings.HasPrefix(strings.ToLower(rec.Query), strings.ToLower(prefix)) {
			matched = append(matched, rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	seen := make(map[string]struct{})
	var out []string
	for _, rec := range matched {
		if _, ok := seen[rec.Query]; ok {
			continue
		}
		seen[rec.Query] = struct{}{}
		out = append(out, rec.Query)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored records
func (r *MemorySearchAnalyticsRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Inserts returns the number of successful InsertBatch calls
func (r *MemorySearchAnalyticsRepository) Inserts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inserts
}
