package geolocation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (c *countingProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &providers.GeocodedAddress{FormattedAddress: "Bandra West, Mumbai", Latitude: lat, Longitude: lon}, nil
}

func TestHTTPGeolocationProvider_ReverseGeocode(t *testing.T) {
	t.Run("returns display name", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/reverse-geocode", r.URL.Path)
			assert.Equal(t, "19.07", r.URL.Query().Get("lat"))
			assert.Equal(t, "72.88", r.URL.Query().Get("lng"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"displayName":"Bandra West, Mumbai"}`))
		}))
		defer server.Close()

		provider := NewHTTPGeolocationProviderWithOptions(server.URL+"/api", server.Client())
		ctx := entities.ContextWithActor(context.Background(), entities.ActorContext{Token: "tok"})

		address, err := provider.ReverseGeocode(ctx, 19.07, 72.88)
		require.NoError(t, err)
		assert.Equal(t, "Bandra West, Mumbai", address.FormattedAddress)
	})

	t.Run("provider failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := NewHTTPGeolocationProviderWithOptions(server.URL, server.Client()).ReverseGeocode(context.Background(), 1, 2)
		assert.ErrorContains(t, err, "status 502")
	})

	t.Run("empty display name is a miss", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"displayName":""}`))
		}))
		defer server.Close()

		_, err := NewHTTPGeolocationProviderWithOptions(server.URL, server.Client()).ReverseGeocode(context.Background(), 1, 2)
		assert.ErrorIs(t, err, providers.ErrNoAddress)
	})
}

func TestGoogleGeolocationProvider_ReverseGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"Colaba, Mumbai, Maharashtra",
			"address_components":[{"long_name":"Mumbai","types":["locality"]},{"long_name":"Colaba","types":["sublocality","political"]},{"long_name":"Maharashtra","types":["administrative_area_level_1"]}],
			"geometry":{"location":{"lat":18.9,"lng":72.8}}}]}`))
	}))
	defer server.Close()

	provider := NewGoogleGeolocationProviderWithOptions("key-1", server.URL, server.Client())

	address, err := provider.ReverseGeocode(context.Background(), 18.9, 72.8)
	require.NoError(t, err)
	assert.Equal(t, "Colaba, Mumbai, Maharashtra", address.FormattedAddress)
	assert.Equal(t, "Colaba", address.Locality)

	_, err = NewGoogleGeolocationProviderWithOptions("", server.URL, server.Client()).ReverseGeocode(context.Background(), 1, 1)
	assert.ErrorContains(t, err, "api key is required")
}

func TestGoogleGeolocationProvider_Statuses(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		miss    bool
	}{
		{name: "zero results", body: `{"status":"ZERO_RESULTS","results":[]}`, miss: true},
		{name: "denied", body: `{"status":"REQUEST_DENIED","error_message":"key expired"}`, wantErr: "REQUEST_DENIED: key expired"},
		{name: "quota", body: `{"status":"OVER_QUERY_LIMIT"}`, wantErr: "OVER_QUERY_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "15.491000,73.828000", r.URL.Query().Get("latlng"))
				assert.Equal(t, googleResultTypes, r.URL.Query().Get("result_type"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewGoogleGeolocationProviderWithOptions("key-1", server.URL, server.Client()).ReverseGeocode(context.Background(), 15.491, 73.828)

			if tt.miss {
				assert.ErrorIs(t, err, providers.ErrNoAddress)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.NotErrorIs(t, err, providers.ErrNoAddress)
		})
	}
}

func TestCachedGeolocationProvider(t *testing.T) {
	inner := &countingProvider{}
	cache := newMemoryCache()
	provider := NewCachedGeolocationProvider(inner, cache, 60, 4)

	first, err := provider.ReverseGeocode(context.Background(), 19.07001, 72.88)
	require.NoError(t, err)
	second, err := provider.ReverseGeocode(context.Background(), 19.07002, 72.88)
	require.NoError(t, err)

	assert.Equal(t, first.FormattedAddress, second.FormattedAddress)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Len(t, cache.data, 1)

	t.Run("failures are not cached", func(t *testing.T) {
		failing := &countingProvider{err: errors.New("down")}
		p := NewCachedGeolocationProvider(failing, newMemoryCache(), 60, 5)

		_, err1 := p.ReverseGeocode(context.Background(), 1, 1)
		_, err2 := p.ReverseGeocode(context.Background(), 1, 1)
		assert.Error(t, err1)
		assert.Error(t, err2)
		assert.Equal(t, int32(2), failing.calls.Load())
	})
}

func TestResilientGeolocationProvider_OpensBreaker(t *testing.T) {
	failing := &countingProvider{err: errors.New("provider down")}
	provider := NewResilientGeolocationProvider("test", failing, ResilienceOptions{
		MaxFailures: 2,
		OpenFor:     time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := provider.ReverseGeocode(context.Background(), 1, 1)
		assert.EqualError(t, err, "provider down")
	}

	_, err := provider.ReverseGeocode(context.Background(), 1, 1)
	assert.Error(t, err)
	assert.Equal(t, int32(2), failing.calls.Load())
	assert.Equal(t, "open", provider.State())
	assert.ErrorIs(t, provider.Check(context.Background()), gobreaker.ErrOpenState)
}

func TestResilientGeolocationProvider_MissesKeepBreakerClosed(t *testing.T) {
	missing := &countingProvider{err: providers.ErrNoAddress}
	provider := NewResilientGeolocationProvider("test", missing, ResilienceOptions{MaxFailures: 1, OpenFor: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := provider.ReverseGeocode(context.Background(), 1, 1)
		assert.ErrorIs(t, err, providers.ErrNoAddress)
	}

	assert.Equal(t, int32(3), missing.calls.Load())
	assert.Equal(t, "closed", provider.State())
}

func TestResilientGeolocationProvider_RateLimitHonoursContext(t *testing.T) {
	inner := &countingProvider{}
	provider := NewResilientGeolocationProvider("test", inner, ResilienceOptions{RatePerSecond: 0.001, Burst: 1})

	_, err := provider.ReverseGeocode(context.Background(), 1, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = provider.ReverseGeocode(ctx, 1, 1)
	assert.ErrorContains(t, err, "rate limit")
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestMockGeolocationProvider(t *testing.T) {
	address, err := NewMockGeolocationProvider().ReverseGeocode(context.Background(), 19.07, 72.88)
	require.NoError(t, err)
	assert.Equal(t, "Near 19.07000, 72.88000", address.FormattedAddress)
}
