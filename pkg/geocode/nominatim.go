package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim endpoint. Its
// usage policy allows at most one request per second.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// nominatimResult mirrors the relevant parts of the jsonv2 search payload.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	PlaceRank   int    `json:"place_rank"`
}

// Nominatim geocodes via an OpenStreetMap Nominatim server.
type Nominatim struct {
	g *geocoder
}

// NewNominatim creates a Nominatim provider limited to 1 request per second
// unless overridden with WithRateLimit.
func NewNominatim(opts ...Option) *Nominatim {
	return &Nominatim{g: newGeocoder(DefaultNominatimURL, 1, opts)}
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// Available implements Provider.
func (n *Nominatim) Available() bool { return n.g.baseURL != "" }

// Geocode implements Client.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	if err := n.g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":      {address},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if n.g.region != "" {
		params.Set("countrycodes", n.g.region)
	}
	reqURL := n.g.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", n.g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}
	if len(body) > maxResponseBytes {
		return nil, eris.Errorf("geocode: nominatim response exceeds %d bytes", maxResponseBytes)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	if len(results) == 0 {
		return &Result{Matched: false, Source: "nominatim"}, nil
	}

	top := results[0]
	lat, err := strconv.ParseFloat(top.Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim parse lat %q", top.Lat)
	}
	lon, err := strconv.ParseFloat(top.Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: nominatim parse lon %q", top.Lon)
	}

	return &Result{
		Latitude:    lat,
		Longitude:   lon,
		Source:      "nominatim",
		Quality:     placeRankToQuality(top.PlaceRank),
		DisplayName: top.DisplayName,
		Matched:     true,
	}, nil
}

// placeRankToQuality maps Nominatim's place_rank to our quality taxonomy.
// Ranks 28-30 are houses and POIs, 26-27 streets, lower ranks are areas.
func placeRankToQuality(rank int) string {
	switch {
	case rank >= 28:
		return "rooftop"
	case rank >= 26:
		return "range"
	case rank >= 16:
		return "centroid"
	default:
		return "approximate"
	}
}
