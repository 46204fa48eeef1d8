package providers

import (
	"context"

	"github.com/zatekoja/eventscan/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to event updates
type EventBus interface {
	// Publish publishes an update to all subscribers
	Publish(ctx context.Context, channel string, update *entities.EventUpdate) error

	// Subscribe subscribes to updates on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.EventUpdate, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants
const (
	// EventChannelEventUpdates carries every event change
	EventChannelEventUpdates = "events:updates"

	// EventChannelEventPrefix is the prefix for per-event channels
	EventChannelEventPrefix = "event:"
)

// GetEventChannel returns the channel name for a specific event
func GetEventChannel(eventID string) string {
	return EventChannelEventPrefix + eventID
}
