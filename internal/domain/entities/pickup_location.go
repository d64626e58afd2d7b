package entities

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// PickupKind discriminates the PickupLocation union
type PickupKind string

const (
	PickupAddress     PickupKind = "address"
	PickupCoordinates PickupKind = "coordinates"
)

// Coordinates is a WGS84 latitude/longitude pair
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PickupLocation is either a free-text address or a coordinate pair.
type PickupLocation struct {
	Kind        PickupKind
	Address     string
	Coordinates Coordinates
	raw         string
}

var coordinatePairPattern = regexp.MustCompile(`^\s*([-+]?\d+(?:\.\d+)?)\s*,\s*([-+]?\d+(?:\.\d+)?)\s*$`)

// ParsePickupLocation classifies a raw pickup string once, at the boundary.
// Anything that is not a well-formed in-range "lat,lng" pair is an address.
func ParsePickupLocation(raw string) PickupLocation {
	m := coordinatePairPattern.FindStringSubmatch(raw)
	if m == nil {
		return AddressPickup(raw)
	}
	lat, errLat := strconv.ParseFloat(m[1], 64)
	lng, errLng := strconv.ParseFloat(m[2], 64)
	if errLat != nil || errLng != nil || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return AddressPickup(raw)
	}
	return PickupLocation{
		Kind:        PickupCoordinates,
		Coordinates: Coordinates{Latitude: lat, Longitude: lng},
		raw:         strings.TrimSpace(raw),
	}
}

// AddressPickup builds the free-text variant
func AddressPickup(address string) PickupLocation {
	return PickupLocation{Kind: PickupAddress, Address: strings.TrimSpace(address)}
}

// CoordinatePickup builds the coordinate variant
func CoordinatePickup(lat, lng float64) PickupLocation {
	return PickupLocation{
		Kind:        PickupCoordinates,
		Coordinates: Coordinates{Latitude: lat, Longitude: lng},
		raw:         strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64),
	}
}

// IsCoordinates reports whether the location needs reverse geocoding
func (p PickupLocation) IsCoordinates() bool {
	return p.Kind == PickupCoordinates
}

// Raw is the text shown when no resolved address is available
func (p PickupLocation) Raw() string {
	if p.Kind == PickupCoordinates {
		if p.raw != "" {
			return p.raw
		}
		return CoordinatePickup(p.Coordinates.Latitude, p.Coordinates.Longitude).raw
	}
	return p.Address
}

type pickupJSON struct {
	Kind      PickupKind `json:"kind"`
	Address   string     `json:"address,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Display   string     `json:"display"`
}

// MarshalJSON renders the union with an explicit kind tag
func (p PickupLocation) MarshalJSON() ([]byte, error) {
	out := pickupJSON{Kind: p.Kind, Display: p.Raw()}
	if p.Kind == PickupCoordinates {
		lat, lng := p.Coordinates.Latitude, p.Coordinates.Longitude
		out.Latitude, out.Longitude = &lat, &lng
	} else {
		out.Kind = PickupAddress
		out.Address = p.Address
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the tagged form produced by MarshalJSON
func (p *PickupLocation) UnmarshalJSON(data []byte) error {
	var in pickupJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Kind == PickupCoordinates && in.Latitude != nil && in.Longitude != nil {
		*p = CoordinatePickup(*in.Latitude, *in.Longitude)
		return nil
	}
	*p = AddressPickup(in.Address)
	return nil
}
