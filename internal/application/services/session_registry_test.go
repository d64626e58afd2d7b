package services_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivam13669/CRMManagementt-sub003/internal/application/services"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

type registryFixture struct {
	backend  *fakeBackend
	registry *services.SessionRegistry

	mu    sync.Mutex
	built int
	seen  []entities.ViewInvalidation
}

func newRegistry(t *testing.T, opts services.SessionRegistryOptions, requests ...entities.DispatchRequest) *registryFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &registryFixture{backend: newFakeBackend(requests...)}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Hour
	}
	opts.OnChange = func(inv entities.ViewInvalidation) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.seen = append(f.seen, inv)
	}
	f.registry = services.NewSessionRegistry(ctx, func(actor entities.ActorContext) *services.DispatchCoordinator {
		f.mu.Lock()
		f.built++
		f.mu.Unlock()
		return services.NewDispatchCoordinator(actor, f.backend, f.backend, nil, services.CoordinatorOptions{})
	}, opts)
	t.Cleanup(f.registry.Close)
	return f
}

func (f *registryFixture) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}

func (f *registryFixture) invalidations() []entities.ViewInvalidation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.ViewInvalidation(nil), f.seen...)
}

func TestSessionRegistry_GetOrCreate(t *testing.T) {
	t.Run("one session per actor", func(t *testing.T) {
		// Arrange
		f := newRegistry(t, services.SessionRegistryOptions{}, newRequest(1, entities.StatusPending, "Maharashtra"))
		renewed := mhAdmin
		renewed.Token = "mh-token-2"

		// Act
		first := f.registry.GetOrCreate(mhAdmin)
		second := f.registry.GetOrCreate(renewed)
		other := f.registry.GetOrCreate(goaAdmin)

		// Assert
		assert.Same(t, first, second)
		assert.NotSame(t, first, other)
		assert.Equal(t, 2, f.buildCount())
		assert.Equal(t, 2, f.registry.Len())
		assert.Equal(t, "mh-token-2", first.Actor().Token)
	})

	t.Run("new sessions load before they are returned", func(t *testing.T) {
		// Arrange
		f := newRegistry(t, services.SessionRegistryOptions{}, newRequest(1, entities.StatusPending, "Maharashtra"))

		// Act
		coordinator := f.registry.GetOrCreate(mhAdmin)

		// Assert
		assert.Equal(t, 1, f.backend.listCount())
		assert.Len(t, coordinator.View(context.Background()).Items, 1)
	})

	t.Run("least recently used session is evicted", func(t *testing.T) {
		// Arrange
		f := newRegistry(t, services.SessionRegistryOptions{MaxSessions: 1})

		// Act
		f.registry.GetOrCreate(mhAdmin)
		f.registry.GetOrCreate(goaAdmin)

		// Assert
		assert.Equal(t, 1, f.registry.Len())
		_, hasMH := f.registry.Get(mhAdmin.SessionKey())
		_, hasGoa := f.registry.Get(goaAdmin.SessionKey())
		assert.False(t, hasMH)
		assert.True(t, hasGoa)
	})

	t.Run("idle sessions expire", func(t *testing.T) {
		// Arrange
		f := newRegistry(t, services.SessionRegistryOptions{IdleTTL: 50 * time.Millisecond})
		f.registry.GetOrCreate(mhAdmin)

		// Act & Assert
		require.Eventually(t, func() bool {
			_, ok := f.registry.Get(mhAdmin.SessionKey())
			return !ok
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestSessionRegistry_SessionRejected(t *testing.T) {
	// Arrange
	f := newRegistry(t, services.SessionRegistryOptions{})
	first := f.registry.GetOrCreate(mhAdmin)

	// Act
	f.registry.SessionRejected(context.Background(), mhAdmin, http.StatusUnauthorized)
	next := f.registry.GetOrCreate(mhAdmin)

	// Assert
	assert.NotSame(t, first, next)
	assert.Equal(t, 2, f.buildCount())
}

func TestSessionRegistry_Broadcast(t *testing.T) {
	// Arrange
	f := newRegistry(t, services.SessionRegistryOptions{}, forwardedRequest(1, 7, "Maharashtra"))
	mh := f.registry.GetOrCreate(mhAdmin)
	root := f.registry.GetOrCreate(systemAdmin)
	event := entities.NewDispatchEvent(entities.DispatchEventHospitalAccepted, 1)
	event.HospitalID = 7

	// Act
	f.registry.Broadcast(context.Background(), event)

	// Assert
	for _, c := range []*services.DispatchCoordinator{mh, root} {
		stored, ok := c.Store().Get(1)
		require.True(t, ok)
		assert.Equal(t, entities.StatusHospitalAccepted, stored.Status)
	}
	pushed := 0
	for _, inv := range f.invalidations() {
		if inv.Reason == services.ReasonPushed {
			pushed++
		}
	}
	assert.Equal(t, 2, pushed)
}

func TestSessionRegistry_Notify(t *testing.T) {
	// Arrange
	f := newRegistry(t, services.SessionRegistryOptions{})
	f.registry.GetOrCreate(mhAdmin)

	// Act
	f.registry.Notify(9, services.ReasonAddress)

	// Assert
	var found *entities.ViewInvalidation
	for _, inv := range f.invalidations() {
		if inv.Reason == services.ReasonAddress {
			found = &inv
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, int64(9), found.RequestID)
	assert.Equal(t, mhAdmin.SessionKey(), found.SessionID)
}
