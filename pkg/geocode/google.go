package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googlePayload struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			LocationType string `json:"location_type"`
		} `json:"geometry"`
	} `json:"results"`
}

// Google geocodes via the Google Geocoding API.
type Google struct {
	g *geocoder
}

// NewGoogle creates a Google provider. It reports itself unavailable until
// an API key is supplied with WithGoogleAPIKey.
func NewGoogle(opts ...Option) *Google {
	return &Google{g: newGeocoder(googleGeocodeURL, 50, opts)}
}

// Name implements Provider.
func (p *Google) Name() string { return "google" }

// Available implements Provider.
func (p *Google) Available() bool { return p.g.googleKey != "" }

// Geocode implements Client. ZERO_RESULTS is a miss; any other non-OK
// status (bad key, quota) is an error.
func (p *Google) Geocode(ctx context.Context, address string) (*Result, error) {
	if p.g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return &Result{Source: "google"}, nil
	}

	if err := p.g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	q := url.Values{"address": {address}, "key": {p.g.googleKey}}
	if p.g.region != "" {
		q.Set("region", p.g.region)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := p.g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	var payload googlePayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch payload.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Source: "google"}, nil
	default:
		msg := payload.Status
		if payload.ErrorMessage != "" {
			msg += ": " + payload.ErrorMessage
		}
		return nil, eris.Errorf("geocode: google %s", msg)
	}
	if len(payload.Results) == 0 {
		return &Result{Source: "google"}, nil
	}

	top := payload.Results[0]
	return &Result{
		Latitude:    top.Geometry.Location.Lat,
		Longitude:   top.Geometry.Location.Lng,
		Source:      "google",
		Quality:     locationTypeQuality(top.Geometry.LocationType),
		DisplayName: top.FormattedAddress,
		Matched:     true,
	}, nil
}

// locationTypeQuality maps Google's location_type onto Result.Quality.
func locationTypeQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
