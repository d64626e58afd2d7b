package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
)

// ResolutionState is the outcome of resolving a pickup location
type ResolutionState string

const (
	ResolutionPending       ResolutionState = "pending"
	ResolutionResolved      ResolutionState = "resolved"
	ResolutionUnavailable   ResolutionState = "unavailable"
	ResolutionNotApplicable ResolutionState = "not_applicable"
)

// Resolution is what the view shows for a pickup location. Display is
// always printable: the resolved address, the free-text address, or the
// raw coordinate pair while pending or unavailable.
type Resolution struct {
	State   ResolutionState `json:"state"`
	Address string          `json:"address,omitempty"`
	Display string          `json:"display"`
}

type geoEntry struct {
	coords  entities.Coordinates
	raw     string
	state   ResolutionState
	address string
}

func (e *geoEntry) resolution() Resolution {
	res := Resolution{State: e.state, Display: e.raw}
	if e.state == ResolutionResolved {
		res.Address = e.address
		res.Display = e.address
	}
	return res
}

// GeoResolverOptions tunes the resolver
type GeoResolverOptions struct {
	// Timeout bounds a single provider lookup.
	Timeout time.Duration
	Metrics *observability.Metrics
	// OnResolved is called after a lookup settles, outside the resolver lock.
	OnResolved func(requestID int64, res Resolution)
}

// GeoResolver turns coordinate pickups into addresses. Results are kept per
// request id for the life of the process and at most one lookup per id is
// in flight at any time.
type GeoResolver struct {
	provider providers.GeolocationProvider
	opts     GeoResolverOptions

	mu      sync.Mutex
	entries map[int64]*geoEntry
}

// NewGeoResolver creates a resolver backed by provider
func NewGeoResolver(provider providers.GeolocationProvider, opts GeoResolverOptions) *GeoResolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &GeoResolver{
		provider: provider,
		opts:     opts,
		entries:  make(map[int64]*geoEntry),
	}
}

// Resolve never blocks on the provider. The first call for an id starts a
// lookup and returns Pending; calls made while it runs also return Pending.
func (r *GeoResolver) Resolve(ctx context.Context, requestID int64, pickup entities.PickupLocation) Resolution {
	if !pickup.IsCoordinates() {
		return Resolution{State: ResolutionNotApplicable, Address: pickup.Address, Display: pickup.Address}
	}

	r.mu.Lock()
	if entry, ok := r.entries[requestID]; ok && (entry.state == ResolutionPending || entry.coords == pickup.Coordinates) {
		res := entry.resolution()
		r.mu.Unlock()
		if res.State == ResolutionPending {
			r.opts.Metrics.RecordGeocodeDedup(ctx)
		}
		return res
	}
	entry := &geoEntry{
		coords: pickup.Coordinates,
		raw:    pickup.Raw(),
		state:  ResolutionPending,
	}
	r.entries[requestID] = entry
	r.mu.Unlock()

	// The lookup outlives the caller's request but keeps its values (session token).
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Timeout)
	go func() {
		defer cancel()
		r.lookup(lookupCtx, requestID, entry)
	}()

	return entry.resolution()
}

func (r *GeoResolver) lookup(ctx context.Context, requestID int64, entry *geoEntry) {
	logger := observability.LoggerFromContext(ctx)
	address, err := r.provider.ReverseGeocode(ctx, entry.coords.Latitude, entry.coords.Longitude)

	r.mu.Lock()
	if err != nil || address == nil || address.FormattedAddress == "" {
		entry.state = ResolutionUnavailable
	} else {
		entry.state = ResolutionResolved
		entry.address = address.FormattedAddress
	}
	res := entry.resolution()
	r.mu.Unlock()

	switch {
	case errors.Is(err, providers.ErrNoAddress):
		logger.Debug().Int64("request_id", requestID).Msg("no address for pickup coordinates")
	case err != nil:
		logger.Warn().Err(err).Int64("request_id", requestID).Msg("reverse geocoding failed, showing raw coordinates")
	}
	r.opts.Metrics.RecordGeocode(ctx, string(res.State))
	if r.opts.OnResolved != nil {
		r.opts.OnResolved(requestID, res)
	}
}

// Lookup returns the cached resolution for an id without starting a lookup
func (r *GeoResolver) Lookup(requestID int64) (Resolution, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[requestID]
	if !ok {
		return Resolution{}, false
	}
	return entry.resolution(), true
}

// Invalidate forgets a settled result so the next Resolve looks it up again.
// An in-flight lookup is left alone.
func (r *GeoResolver) Invalidate(requestID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[requestID]; ok && entry.state != ResolutionPending {
		delete(r.entries, requestID)
	}
}
