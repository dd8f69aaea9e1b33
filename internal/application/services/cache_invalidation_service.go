package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/providers"
	"github.com/rs/zerolog/log"
)

// CacheInvalidator is a dispatcher whose cached results can be dropped
type CacheInvalidator interface {
	Table() string
	InvalidateCache(ctx context.Context) error
}

// CacheInvalidationService drops cached search results when the invalidation
// bus reports that a table changed.
type CacheInvalidationService struct {
	bus providers.InvalidationBus

	mu          sync.RWMutex
	dispatchers map[string][]CacheInvalidator

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(bus providers.InvalidationBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		bus:         bus,
		dispatchers: make(map[string][]CacheInvalidator),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Register adds a dispatcher to be invalidated for its table
func (s *CacheInvalidationService) Register(d CacheInvalidator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatchers[d.Table()] = append(s.dispatchers[d.Table()], d)
}

// Start begins listening for events
func (s *CacheInvalidationService) Start() error {
	events, err := s.bus.Subscribe(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidation events: %w", err)
	}

	s.started.Store(true)
	go s.processEvents(events)
	log.Info().Msg("Cache invalidation service started")
	return nil
}

// Stop stops listening and waits for the event loop to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	if s.started.Load() {
		<-s.done
	}
	log.Info().Msg("Cache invalidation service stopped")
}

// Publish announces that table changed. An empty table invalidates every table.
func (s *CacheInvalidationService) Publish(ctx context.Context, table, reason string) error {
	return s.bus.Publish(ctx, &entities.InvalidationEvent{Table: table, Reason: reason})
}

func (s *CacheInvalidationService) processEvents(events <-chan *entities.InvalidationEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *CacheInvalidationService) handleEvent(event *entities.InvalidationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	var targets []CacheInvalidator
	if event.Table == "" {
		for _, ds := range s.dispatchers {
			targets = append(targets, ds...)
		}
	} else {
		targets = append(targets, s.dispatchers[event.Table]...)
	}
	s.mu.RUnlock()

	for _, d := range targets {
		if err := d.InvalidateCache(ctx); err != nil {
			log.Warn().Err(err).Str("table", d.Table()).Str("event_id", event.ID).Msg("Failed to invalidate search cache")
			continue
		}
		log.Info().Str("table", d.Table()).Str("event_id", event.ID).Str("reason", event.Reason).Msg("Invalidated search cache")
	}
}
