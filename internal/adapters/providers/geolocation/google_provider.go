package geolocation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/providers"
)

const (
	googleGeocodeURL   = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultHTTPTimeout = 8 * time.Second

	// Nothing coarser than a locality.
	googleResultTypes = "street_address|premise|route|sublocality|locality"
)

// GoogleGeolocationProvider reverse geocodes pickups through the Google Geocoding API
type GoogleGeolocationProvider struct {
	apiKey     string
	language   string
	httpClient *http.Client
	baseURL    string
}

// NewGoogleGeolocationProvider creates a provider answering in English
func NewGoogleGeolocationProvider(apiKey string, timeout time.Duration) providers.GeolocationProvider {
	return NewGoogleGeolocationProviderWithOptions(apiKey, googleGeocodeURL, &http.Client{Timeout: timeout})
}

// NewGoogleGeolocationProviderWithOptions allows overriding base URL and HTTP client (used for tests).
func NewGoogleGeolocationProviderWithOptions(apiKey, baseURL string, httpClient *http.Client) providers.GeolocationProvider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = googleGeocodeURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &GoogleGeolocationProvider{
		apiKey:     apiKey,
		language:   "en",
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// ReverseGeocode returns the most precise address Google has for the point.
// ZERO_RESULTS is reported as providers.ErrNoAddress.
func (g *GoogleGeolocationProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (*providers.GeocodedAddress, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("google maps api key is required")
	}

	params := url.Values{}
	params.Set("latlng", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("result_type", googleResultTypes)
	params.Set("language", g.language)
	params.Set("key", g.apiKey)

	payload, err := g.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	switch payload.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, providers.ErrNoAddress
	default:
		if payload.ErrorMessage != "" {
			return nil, fmt.Errorf("google geocoding %s: %s", payload.Status, payload.ErrorMessage)
		}
		return nil, fmt.Errorf("google geocoding %s", payload.Status)
	}
	if len(payload.Results) == 0 || payload.Results[0].FormattedAddress == "" {
		return nil, providers.ErrNoAddress
	}

	best := payload.Results[0]
	return &providers.GeocodedAddress{
		FormattedAddress: best.FormattedAddress,
		Locality:         best.locality(),
		Latitude:         lat,
		Longitude:        lon,
	}, nil
}

func (g *GoogleGeolocationProvider) fetch(ctx context.Context, params url.Values) (*googleGeocodeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var payload googleGeocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	return &payload, nil
}

type googleGeocodeResponse struct {
	Status       string                `json:"status"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Results      []googleGeocodeResult `json:"results"`
}

type googleGeocodeResult struct {
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
}

// locality prefers the neighbourhood over the city
func (r googleGeocodeResult) locality() string {
	for _, want := range []string{"sublocality", "locality"} {
		for _, comp := range r.AddressComponents {
			if slices.Contains(comp.Types, want) {
				return comp.LongName
			}
		}
	}
	return ""
}
