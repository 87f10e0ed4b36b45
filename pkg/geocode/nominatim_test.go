package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNominatim(srvURL string, opts ...Option) *Nominatim {
	n := NewNominatim(append([]Option{WithBaseURL(srvURL)}, opts...)...)
	n.g.limiter = newTestLimiter()
	return n
}

func TestNominatimGeocode_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Irene Dairy Farm, Pretoria, South Africa", r.URL.Query().Get("q"))
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{
			"lat": "-25.8601",
			"lon": "28.2486",
			"display_name": "Irene Dairy Farm, Irene, Centurion, Gauteng, South Africa",
			"place_rank": 30
		}]`)
	}))
	defer srv.Close()

	n := newTestNominatim(srv.URL, WithUserAgent("test-agent"))
	result, err := n.Geocode(context.Background(), "  Irene Dairy Farm, Pretoria, South Africa ")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, -25.8601, result.Latitude, 1e-9)
	assert.InDelta(t, 28.2486, result.Longitude, 1e-9)
	assert.Equal(t, "nominatim", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Contains(t, result.DisplayName, "Irene")
}

func TestNominatimGeocode_DefaultUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestNominatim(srv.URL).Geocode(context.Background(), "x")
	require.NoError(t, err)
}

func TestNominatimGeocode_Region(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Query().Get("countrycodes"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestNominatim(srv.URL, WithRegion(" ZA ")).Geocode(context.Background(), "Muldersdrift")
	require.NoError(t, err)
	assert.Equal(t, "za", got.Load())

	_, err = newTestNominatim(srv.URL).Geocode(context.Background(), "Muldersdrift")
	require.NoError(t, err)
	assert.Equal(t, "", got.Load())
}

func TestNominatimGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	result, err := newTestNominatim(srv.URL).Geocode(context.Background(), "Nowhere at all")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestNominatimGeocode_EmptyAddress(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	result, err := newTestNominatim(srv.URL).Geocode(context.Background(), "   ")
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.False(t, called)
}

func TestNominatimGeocode_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestNominatim(srv.URL).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestNominatimGeocode_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[{"lat": "north", "lon": "28.2"}]`)
	}))
	defer srv.Close()

	_, err := newTestNominatim(srv.URL).Geocode(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse lat")
}

func TestNominatimGeocode_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"lat": "-25.8601", "lon": "28.2486", "display_name": "`)
		_, _ = io.WriteString(w, strings.Repeat("x", maxResponseBytes))
		_, _ = io.WriteString(w, `"}]`)
	}))
	defer srv.Close()

	_, err := newTestNominatim(srv.URL).Geocode(context.Background(), "Irene Dairy Farm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response exceeds 1048576 bytes")
}

func TestNominatimGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestNominatim(srv.URL).Geocode(ctx, "slow")
	require.Error(t, err)
}

func TestNominatim_LimiterDefaults(t *testing.T) {
	n := NewNominatim()
	assert.InDelta(t, 1.0, float64(n.g.limiter.Limit()), 1e-9)
	assert.Equal(t, DefaultNominatimURL, n.g.baseURL)
	assert.True(t, n.Available())

	n = NewNominatim(WithRateLimit(0.5))
	assert.InDelta(t, 0.5, float64(n.g.limiter.Limit()), 1e-9)
	assert.Equal(t, 1, n.g.limiter.Burst())

	n = NewNominatim(WithRateLimit(-1))
	assert.InDelta(t, 1.0, float64(n.g.limiter.Limit()), 1e-9)
}

func TestPlaceRankToQuality(t *testing.T) {
	tests := []struct {
		rank     int
		expected string
	}{
		{30, "rooftop"},
		{28, "rooftop"},
		{26, "range"},
		{16, "centroid"},
		{4, "approximate"},
		{0, "approximate"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, placeRankToQuality(tt.rank), "rank=%d", tt.rank)
	}
}
