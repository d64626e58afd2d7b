package services

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
)

// SessionRegistryOptions bounds the number and lifetime of sessions
type SessionRegistryOptions struct {
	MaxSessions  int
	IdleTTL      time.Duration
	PollInterval time.Duration
	Metrics      *observability.Metrics
	// OnChange receives every session's view invalidations.
	OnChange func(entities.ViewInvalidation)
}

// CoordinatorFactory builds the coordinator of a new session
type CoordinatorFactory func(actor entities.ActorContext) *DispatchCoordinator

type session struct {
	coordinator *DispatchCoordinator
	cancel      context.CancelFunc
}

// SessionRegistry keeps one DispatchCoordinator per signed-in operator.
// Sessions idle for longer than IdleTTL are evicted and stop polling.
type SessionRegistry struct {
	ctx     context.Context
	build   CoordinatorFactory
	opts    SessionRegistryOptions
	mu      sync.Mutex
	entries *expirable.LRU[string, *session]
}

// NewSessionRegistry creates a registry. Pollers run until ctx ends or the
// session is evicted.
func NewSessionRegistry(ctx context.Context, build CoordinatorFactory, opts SessionRegistryOptions) *SessionRegistry {
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 512
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}

	r := &SessionRegistry{ctx: ctx, build: build, opts: opts}
	r.entries = expirable.NewLRU[string, *session](opts.MaxSessions, r.evicted, opts.IdleTTL)
	return r
}

func (r *SessionRegistry) evicted(key string, s *session) {
	s.cancel()
	r.opts.Metrics.AddSessions(context.Background(), -1)
	observability.LoggerFromContext(r.ctx).Debug().Str("session", key).Msg("dispatch session closed")
}

// GetOrCreate returns actor's session, creating and starting it on first
// use. Every call extends the session's idle deadline and adopts the
// actor's current token.
func (r *SessionRegistry) GetOrCreate(actor entities.ActorContext) *DispatchCoordinator {
	key := actor.SessionKey()

	r.mu.Lock()
	if s, ok := r.entries.Get(key); ok {
		r.entries.Add(key, s)
		r.mu.Unlock()
		s.coordinator.UpdateActor(actor)
		return s.coordinator
	}

	coordinator := r.build(actor)
	if r.opts.OnChange != nil {
		coordinator.OnChange(r.opts.OnChange)
	}
	pollCtx, cancel := context.WithCancel(r.ctx)
	r.entries.Add(key, &session{coordinator: coordinator, cancel: cancel})
	r.mu.Unlock()

	r.opts.Metrics.AddSessions(r.ctx, 1)
	coordinator.StartPolling(pollCtx, r.opts.PollInterval)
	return coordinator
}

// Get returns an existing session without extending it
func (r *SessionRegistry) Get(key string) (*DispatchCoordinator, bool) {
	s, ok := r.entries.Peek(key)
	if !ok {
		return nil, false
	}
	return s.coordinator, true
}

// Remove ends a session, e.g. after the backend refused its token
func (r *SessionRegistry) Remove(key string) {
	r.entries.Remove(key)
}

// SessionRejected drops the session whose token the backend refused. The
// operator's next call starts a new session with whatever token it carries.
func (r *SessionRegistry) SessionRejected(ctx context.Context, actor entities.ActorContext, statusCode int) {
	if r.entries.Remove(actor.SessionKey()) {
		observability.LoggerFromContext(ctx).Info().Int("status", statusCode).Msg("dispatch session dropped after token refusal")
	}
}

// Len returns the number of live sessions
func (r *SessionRegistry) Len() int {
	return r.entries.Len()
}

// Broadcast applies a pushed backend event to every live session
func (r *SessionRegistry) Broadcast(ctx context.Context, event *entities.DispatchEvent) {
	sessions := r.entries.Values()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(c *DispatchCoordinator) {
			defer wg.Done()
			if err := c.ApplyEvent(ctx, event); err != nil {
				observability.LoggerFromContext(ctx).Debug().Err(err).Str("event_id", event.ID).Msg("session refresh after event failed")
			}
		}(s.coordinator)
	}
	wg.Wait()
}

// Notify tells every live session that requestID changed outside its store,
// e.g. a pickup address was resolved
func (r *SessionRegistry) Notify(requestID int64, reason string) {
	for _, s := range r.entries.Values() {
		s.coordinator.notify(requestID, reason)
	}
}

// Close ends every session
func (r *SessionRegistry) Close() {
	r.entries.Purge()
}
