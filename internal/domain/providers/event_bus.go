package providers

import (
	"context"
	"strconv"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

// EventBus carries dispatch lifecycle events between the backend and this service
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.DispatchEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.DispatchEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelDispatchEvents is where the backend publishes lifecycle events
	EventChannelDispatchEvents = "dispatch:events"

	// EventChannelRequestPrefix is the prefix for request-specific channels
	EventChannelRequestPrefix = "dispatch:request:"
)

// GetRequestChannel returns the channel name for a single request
func GetRequestChannel(requestID int64) string {
	return EventChannelRequestPrefix + strconv.FormatInt(requestID, 10)
}
