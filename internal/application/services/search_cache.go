package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/providers"
	"github.com/ghxstship/search-service/internal/infrastructure/observability"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache defaults
const (
	DefaultCacheTTL  = 5 * time.Minute
	DefaultCacheSize = 100
)

type cacheEntry[T any] struct {
	Result   *entities.SearchResult[T] `json:"result"`
	StoredAt time.Time                 `json:"storedAt"`
}

// searchCache is a TTL cache with insertion-order eviction. Reads use Peek so
// lookups never reorder the eviction list. An optional shared tier is
// consulted on local misses; its failures are logged and ignored.
type searchCache[T any] struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, cacheEntry[T]]
	ttl     time.Duration
	now     func() time.Time

	shared providers.CacheProvider
	prefix string
}

func newSearchCache[T any](size int, ttl time.Duration, now func() time.Time, shared providers.CacheProvider, prefix string) *searchCache[T] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	entries, _ := simplelru.NewLRU[string, cacheEntry[T]](size, nil)
	return &searchCache[T]{
		entries: entries,
		ttl:     ttl,
		now:     now,
		shared:  shared,
		prefix:  prefix,
	}
}

func (c *searchCache[T]) get(ctx context.Context, key string) (*entities.SearchResult[T], bool) {
	c.mu.Lock()
	entry, ok := c.entries.Peek(key)
	if ok && c.live(entry) {
		c.mu.Unlock()
		return entry.Result, true
	}
	if ok {
		c.entries.Remove(key)
	}
	c.mu.Unlock()

	if c.shared == nil {
		return nil, false
	}

	data, found, err := c.shared.Get(ctx, c.prefix+key)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Shared search cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var shared cacheEntry[T]
	if err := json.Unmarshal(data, &shared); err != nil || shared.Result == nil || !c.live(shared) {
		return nil, false
	}

	c.mu.Lock()
	c.entries.Add(key, shared)
	c.mu.Unlock()

	return shared.Result, true
}

func (c *searchCache[T]) set(ctx context.Context, key string, result *entities.SearchResult[T]) {
	entry := cacheEntry[T]{Result: result, StoredAt: c.now()}

	c.mu.Lock()
	c.entries.Add(key, entry)
	c.mu.Unlock()

	if c.shared == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Failed to encode search result for shared cache")
		return
	}
	if err := c.shared.Set(ctx, c.prefix+key, data, c.ttl); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("Shared search cache write failed")
	}
}

// purge drops every local entry and, when shared, every key under this cache's prefix
func (c *searchCache[T]) purge(ctx context.Context) error {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()

	if c.shared == nil {
		return nil
	}
	return c.shared.DeletePrefix(ctx, c.prefix)
}

func (c *searchCache[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *searchCache[T]) live(e cacheEntry[T]) bool {
	return c.now().Sub(e.StoredAt) < c.ttl
}

// cacheKeyFields is every option that changes the result. encoding/json sorts
// map keys, so equal options always serialise identically.
type cacheKeyFields struct {
	Query      string                `json:"q"`
	Type       entities.SearchType   `json:"t"`
	Fields     []string              `json:"f,omitempty"`
	Filters    entities.Filters      `json:"fl,omitempty"`
	Sort       *entities.SortOptions `json:"s,omitempty"`
	Pagination *entities.Pagination  `json:"p,omitempty"`
	Highlight  bool                  `json:"h,omitempty"`
	Facets     []string              `json:"fc,omitempty"`
}

func cacheKey(opts entities.SearchOptions) string {
	b, err := json.Marshal(cacheKeyFields{
		Query:      opts.Query,
		Type:       opts.Type.OrDefault(),
		Fields:     opts.Fields,
		Filters:    opts.Filters,
		Sort:       opts.Sort,
		Pagination: opts.Pagination,
		Highlight:  opts.Highlight,
		Facets:     opts.Facets,
	})
	if err != nil {
		// unencodable filter values; such requests are simply never cached
		return ""
	}
	return string(b)
}
