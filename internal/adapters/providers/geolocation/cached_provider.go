package geolocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

// CachedGeolocationProvider keeps reverse geocoding results in a shared
// cache so restarts and sibling instances do not repeat provider calls.
type CachedGeolocationProvider struct {
	provider providers.GeolocationProvider
	cache    providers.CacheProvider
	ttl      int
	places   int
}

// NewCachedGeolocationProvider wraps provider. Coordinates are rounded to
// places decimals when building the cache key.
func NewCachedGeolocationProvider(provider providers.GeolocationProvider, cache providers.CacheProvider, ttlSeconds, places int) providers.GeolocationProvider {
	if places <= 0 {
		places = 5
	}
	return &CachedGeolocationProvider{
		provider: provider,
		cache:    cache,
		ttl:      ttlSeconds,
		places:   places,
	}
}

func (c *CachedGeolocationProvider) cacheKey(lat, lon float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.*f,%.*f", c.places, lat, c.places, lon)))
	return "geo:reverse:" + hex.EncodeToString(sum[:])
}

// ReverseGeocode serves from cache or delegates and stores the answer
func (c *CachedGeolocationProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	key := c.cacheKey(lat, lon)

	if cached, err := c.cache.Get(ctx, key); err == nil && len(cached) > 0 {
		var address providers.GeocodedAddress
		if err := json.Unmarshal(cached, &address); err == nil && address.FormattedAddress != "" {
			return &address, nil
		}
		log.Debug().Str("key", key).Msg("discarding unreadable cached address")
	}

	address, err := c.provider.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(address); err == nil {
		if err := c.cache.Set(ctx, key, payload, c.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache reverse geocode result")
		}
	}
	return address, nil
}
