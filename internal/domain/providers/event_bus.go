package providers

import (
	"context"

	"github.com/junohealth/marketexplorer/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to data events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.DataEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.DataEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelClaimsData is the channel claims loaders publish data events on
const EventChannelClaimsData = "claims:data"
