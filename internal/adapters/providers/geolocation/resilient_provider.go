package geolocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

// ResilienceOptions bounds how hard the external provider is pushed
type ResilienceOptions struct {
	RatePerSecond   float64
	Burst           int
	MaxFailures     int
	OpenFor         time.Duration
	BreakerInterval time.Duration
}

// ResilientGeolocationProvider rate limits calls and stops calling a
// provider that keeps failing until OpenFor has passed.
type ResilientGeolocationProvider struct {
	provider providers.GeolocationProvider
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
}

// NewResilientGeolocationProvider wraps provider with a limiter and breaker
func NewResilientGeolocationProvider(name string, provider providers.GeolocationProvider, opts ResilienceOptions) *ResilientGeolocationProvider {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}
	maxFailures := opts.MaxFailures
	if maxFailures < 1 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.OpenFor,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, providers.ErrNoAddress)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geocoding circuit breaker changed state")
		},
	})

	return &ResilientGeolocationProvider{
		provider: provider,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  breaker,
	}
}

// ReverseGeocode waits for a rate token, then calls through the breaker
func (r *ResilientGeolocationProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("reverse geocode rate limit: %w", err)
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.provider.ReverseGeocode(ctx, lat, lon)
	})
	if err != nil {
		return nil, err
	}
	return out.(*providers.GeocodedAddress), nil
}

// State exposes the breaker state for health reporting
func (r *ResilientGeolocationProvider) State() string {
	return r.breaker.State().String()
}

// Check fails while the breaker is open
func (r *ResilientGeolocationProvider) Check(ctx context.Context) error {
	if r.breaker.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	return nil
}
