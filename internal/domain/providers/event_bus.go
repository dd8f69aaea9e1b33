package providers

import (
	"context"

	"github.com/ghxstship/search-service/internal/domain/entities"
)

// InvalidationBus fans cache invalidation events out to every API replica.
type InvalidationBus interface {
	// Publish sends an event to all subscribers
	Publish(ctx context.Context, event *entities.InvalidationEvent) error

	// Subscribe delivers events until ctx is cancelled or the bus is closed
	Subscribe(ctx context.Context) (<-chan *entities.InvalidationEvent, error)

	// Close closes the bus and all subscriptions
	Close() error
}

// EventChannelSearchInvalidate is the pub/sub channel carrying InvalidationEvents
const EventChannelSearchInvalidate = "search:invalidate"
