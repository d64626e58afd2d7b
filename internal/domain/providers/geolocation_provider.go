package providers

import (
	"context"
	"errors"
)

// ErrNoAddress means the provider answered but knows no address for the
// point. It is not a provider failure.
var ErrNoAddress = errors.New("no address for coordinates")

// GeolocationProvider turns a pickup coordinate into a display address
type GeolocationProvider interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (*GeocodedAddress, error)
}

// GeocodedAddress is what a provider knows about a pickup point
type GeocodedAddress struct {
	FormattedAddress string  `json:"formatted_address"`
	Locality         string  `json:"locality,omitempty"`
	Latitude         float64 `json:"lat"`
	Longitude        float64 `json:"lng"`
}
