package geolocation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

// HTTPGeolocationProvider calls the portal's reverse geocoding endpoint,
// GET {base}/reverse-geocode?lat=&lng= answering {"displayName": "..."}.
type HTTPGeolocationProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPGeolocationProvider creates a provider with a bounded timeout
func NewHTTPGeolocationProvider(baseURL string, timeout time.Duration) providers.GeolocationProvider {
	return NewHTTPGeolocationProviderWithOptions(baseURL, &http.Client{Timeout: timeout})
}

// NewHTTPGeolocationProviderWithOptions allows overriding the HTTP client (used for tests).
func NewHTTPGeolocationProviderWithOptions(baseURL string, httpClient *http.Client) providers.GeolocationProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPGeolocationProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type reverseGeocodeResponse struct {
	DisplayName string `json:"displayName"`
	Data        *struct {
		DisplayName string `json:"displayName"`
	} `json:"data,omitempty"`
}

// ReverseGeocode converts coordinates to an address.
func (p *HTTPGeolocationProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(lon, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/reverse-geocode?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reverse geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if actor, ok := entities.ActorFromContext(ctx); ok && actor.Token != "" {
		req.Header.Set("Authorization", "Bearer "+actor.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("reverse geocode request returned status %d", resp.StatusCode)
	}

	var payload reverseGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode reverse geocode response: %w", err)
	}

	name := payload.DisplayName
	if name == "" && payload.Data != nil {
		name = payload.Data.DisplayName
	}
	if strings.TrimSpace(name) == "" {
		return nil, providers.ErrNoAddress
	}

	return &providers.GeocodedAddress{
		FormattedAddress: name,
		Latitude:         lat,
		Longitude:        lon,
	}, nil
}
