package geolocation

import (
	"context"
	"fmt"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

// MockGeolocationProvider answers every lookup locally, for development
type MockGeolocationProvider struct{}

// NewMockGeolocationProvider creates a new mock geolocation provider
func NewMockGeolocationProvider() providers.GeolocationProvider {
	return &MockGeolocationProvider{}
}

// ReverseGeocode returns a synthetic address for the coordinates
func (m *MockGeolocationProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	return &providers.GeocodedAddress{
		FormattedAddress: fmt.Sprintf("Near %.5f, %.5f", lat, lon),
		Latitude:         lat,
		Longitude:        lon,
	}, nil
}
