package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGeocodeURL     = "https://maps.googleapis.com/maps/api/geocode/json"
	defaultGeocodeTimeout = 10 * time.Second
)

// Geocoder resolves a coordinate to a sublocality name.
type Geocoder interface {
	Sublocality(ctx context.Context, lat, lon float64) string
}

// NopGeocoder never resolves anything.
type NopGeocoder struct{}

// Sublocality returns empty string.
func (NopGeocoder) Sublocality(context.Context, float64, float64) string {
	return ""
}

// GoogleGeocoder calls the Google Geocoding API under a request rate limit.
// Params: API key, requests per second and optional base URL override.
// Returns: sublocality names; failures degrade to empty string.
type GoogleGeocoder struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGoogleGeocoder creates rate-limited reverse geocoder.
func NewGoogleGeocoder(apiKey string, rps float64, baseURL string, logger *slog.Logger) *GoogleGeocoder {
	if baseURL == "" {
		baseURL = defaultGeocodeURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &GoogleGeocoder{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultGeocodeTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

// Sublocality returns the first `sublocality` component for the coordinate.
func (g *GoogleGeocoder) Sublocality(ctx context.Context, lat, lon float64) string {
	name, err := g.lookup(ctx, lat, lon)
	if err != nil {
		g.logger.Warn("sublocality lookup failed", "lat", lat, "lon", lon, "error", err.Error())
		return ""
	}
	return name
}

func (g *GoogleGeocoder) lookup(ctx context.Context, lat, lon float64) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	query := url.Values{}
	query.Set("latlng", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocode status %d", resp.StatusCode)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode geocode response: %w", err)
	}
	for _, result := range body.Results {
		for _, component := range result.AddressComponents {
			for _, kind := range component.Types {
				if kind == "sublocality" {
					return component.LongName, nil
				}
			}
		}
	}
	return "", nil
}
