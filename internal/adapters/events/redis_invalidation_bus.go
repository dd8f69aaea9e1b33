package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghxstship/search-service/internal/domain/entities"
	"github.com/ghxstship/search-service/internal/domain/providers"
	redisclient "github.com/ghxstship/search-service/internal/infrastructure/clients/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// subscriberBuffer is the per-subscriber channel capacity
const subscriberBuffer = 100

// RedisInvalidationBus implements InvalidationBus using Redis Pub/Sub.
// All local subscribers share one Redis subscription.
type RedisInvalidationBus struct {
	client      *redis.Client
	channel     string
	pubsub      *redis.PubSub
	subscribers map[chan *entities.InvalidationEvent]struct{}
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewRedisInvalidationBus creates a new Redis-based invalidation bus
func NewRedisInvalidationBus(client *redisclient.Client) providers.InvalidationBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisInvalidationBus{
		client:      client.Client(),
		channel:     providers.EventChannelSearchInvalidate,
		subscribers: make(map[chan *entities.InvalidationEvent]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Publish publishes an event to all subscribers
func (b *RedisInvalidationBus) Publish(ctx context.Context, event *entities.InvalidationEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("channel", b.channel).Str("event_id", event.ID).Str("table", event.Table).Msg("Published invalidation event")
	return nil
}

// Subscribe returns a channel of events that closes when ctx is done or the bus is closed
func (b *RedisInvalidationBus) Subscribe(ctx context.Context) (<-chan *entities.InvalidationEvent, error) {
	if b.ctx.Err() != nil {
		return nil, errors.New("invalidation bus is closed")
	}

	b.mu.Lock()
	if b.pubsub == nil {
		pubsub := b.client.Subscribe(b.ctx, b.channel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			b.mu.Unlock()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
		}
		b.pubsub = pubsub
		go b.receiveMessages(pubsub)
	}

	eventChan := make(chan *entities.InvalidationEvent, subscriberBuffer)
	b.subscribers[eventChan] = struct{}{}
	subscriberCount := len(b.subscribers)
	b.mu.Unlock()

	log.Info().Str("channel", b.channel).Int("subscribers", subscriberCount).Msg("Subscribed to invalidation events")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeSubscriber(eventChan)
	}()

	return eventChan, nil
}

// receiveMessages fans Redis messages out to local subscribers
func (b *RedisInvalidationBus) receiveMessages(pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", b.channel).Msg("Failed to unmarshal invalidation event")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.subscribers {
				ev := event
				select {
				case subscriber <- &ev:
				default:
					log.Warn().Str("event_id", event.ID).Msg("Subscriber channel full, skipping invalidation event")
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisInvalidationBus) removeSubscriber(eventChan chan *entities.InvalidationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[eventChan]; !ok {
		return
	}
	delete(b.subscribers, eventChan)
	close(eventChan)
}

// Close closes the bus and all subscriptions
func (b *RedisInvalidationBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers {
		delete(b.subscribers, subscriber)
		close(subscriber)
	}

	if b.pubsub != nil {
		err := b.pubsub.Close()
		b.pubsub = nil
		if err != nil {
			return fmt.Errorf("failed to close subscription %s: %w", b.channel, err)
		}
	}

	log.Info().Msg("Invalidation bus closed")
	return nil
}
