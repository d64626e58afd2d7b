package events

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

// fanout tracks local subscriber channels per bus channel. Sends never
// block; a full subscriber misses the event.
type fanout struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.DispatchEvent]struct{}
}

func newFanout() *fanout {
	return &fanout{subscribers: make(map[string]map[chan *entities.DispatchEvent]struct{})}
}

func (f *fanout) add(channel string) chan *entities.DispatchEvent {
	ch := make(chan *entities.DispatchEvent, subscriberBuffer)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribers[channel] == nil {
		f.subscribers[channel] = make(map[chan *entities.DispatchEvent]struct{})
	}
	f.subscribers[channel][ch] = struct{}{}
	return ch
}

// remove closes ch and returns how many subscribers remain on channel
func (f *fanout) remove(channel string, ch chan *entities.DispatchEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs, ok := f.subscribers[channel]
	if !ok {
		return 0
	}
	if _, ok := subs[ch]; ok {
		delete(subs, ch)
		close(ch)
	}
	if len(subs) == 0 {
		delete(f.subscribers, channel)
	}
	return len(subs)
}

func (f *fanout) removeAll(channel string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers[channel] {
		close(ch)
	}
	delete(f.subscribers, channel)
}

func (f *fanout) count(channel string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers[channel])
}

func (f *fanout) broadcast(channel string, event *entities.DispatchEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers[channel] {
		select {
		case ch <- event:
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber full, skipping event")
		}
	}
}
