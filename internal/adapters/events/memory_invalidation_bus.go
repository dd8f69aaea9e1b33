package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/providers"
	"github.com/google/uuid"
)

// MemoryInvalidationBus delivers events between dispatchers in one process
type MemoryInvalidationBus struct {
	mu          sync.RWMutex
	subscribers map[chan *entities.InvalidationEvent]struct{}
	closed      bool
}

var _ providers.InvalidationBus = (*MemoryInvalidationBus)(nil)

// NewMemoryInvalidationBus creates an in-process bus
func NewMemoryInvalidationBus() *MemoryInvalidationBus {
	return &MemoryInvalidationBus{subscribers: make(map[chan *entities.InvalidationEvent]struct{})}
}

// Publish delivers event to every current subscriber
func (b *MemoryInvalidationBus) Publish(ctx context.Context, event *entities.InvalidationEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("invalidation bus is closed")
	}
	for subscriber := range b.subscribers {
		ev := *event
		select {
		case subscriber <- &ev:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that closes when ctx is done or the bus is closed
func (b *MemoryInvalidationBus) Subscribe(ctx context.Context) (<-chan *entities.InvalidationEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("invalidation bus is closed")
	}

	ch := make(chan *entities.InvalidationEvent, subscriberBuffer)
	b.subscribers[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

func (b *MemoryInvalidationBus) remove(ch chan *entities.InvalidationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes every subscription
func (b *MemoryInvalidationBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.closed = true
	return nil
}
