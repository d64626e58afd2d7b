package events

import (
	"context"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

// MemoryEventBus delivers events within one process. Used when Redis is
// disabled and in tests.
type MemoryEventBus struct {
	fanout *fanout
}

// NewMemoryEventBus creates an in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{fanout: newFanout()}
}

// Publish delivers event to current subscribers of channel
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.DispatchEvent) error {
	b.fanout.broadcast(channel, event)
	return nil
}

// Subscribe returns a channel that receives events until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DispatchEvent, error) {
	ch := b.fanout.add(channel)
	go func() {
		<-ctx.Done()
		b.fanout.remove(channel, ch)
	}()
	return ch, nil
}

// Unsubscribe drops every subscriber of channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.fanout.removeAll(channel)
	return nil
}

// Close is a no-op
func (b *MemoryEventBus) Close() error {
	return nil
}
