package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

// EventSink receives backend lifecycle events
type EventSink interface {
	Broadcast(ctx context.Context, event *entities.DispatchEvent)
}

// DispatchEventListener feeds backend push events into the live sessions
type DispatchEventListener struct {
	eventBus providers.EventBus
	sink     EventSink
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDispatchEventListener creates a listener; call Start to begin
func NewDispatchEventListener(eventBus providers.EventBus, sink EventSink) *DispatchEventListener {
	ctx, cancel := context.WithCancel(context.Background())
	return &DispatchEventListener{
		eventBus: eventBus,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start subscribes to the dispatch event channel
func (l *DispatchEventListener) Start() error {
	eventChan, err := l.eventBus.Subscribe(l.ctx, providers.EventChannelDispatchEvents)
	if err != nil {
		return fmt.Errorf("failed to subscribe to dispatch events: %w", err)
	}

	go l.processEvents(eventChan)
	log.Info().Str("channel", providers.EventChannelDispatchEvents).Msg("dispatch event listener started")
	return nil
}

// Stop unsubscribes and waits for the current event to finish
func (l *DispatchEventListener) Stop() {
	l.cancel()
	<-l.done
	log.Info().Msg("dispatch event listener stopped")
}

func (l *DispatchEventListener) processEvents(eventChan <-chan *entities.DispatchEvent) {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil || event.RequestID == 0 {
				continue
			}
			log.Debug().
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Int64("request_id", event.RequestID).
				Msg("dispatch event received")
			l.sink.Broadcast(l.ctx, event)
		}
	}
}
