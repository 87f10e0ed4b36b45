package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-seeder/internal/config"
	"github.com/sells-group/farm-seeder/internal/sink"
	"github.com/sells-group/farm-seeder/pkg/geocode"
)

// seedEnv holds the sink and geocoder a seed run needs.
type seedEnv struct {
	Sink     sink.Sink
	Geocoder geocode.Client
}

// Close releases the sink.
func (e *seedEnv) Close() {
	if e.Sink != nil {
		if err := e.Sink.Close(); err != nil {
			zap.L().Warn("close sink", zap.Error(err))
		}
	}
}

// initSeed validates the config for seeding, opens the sink and builds the
// geocoder. With migrate set the sink schema is applied first. Callers
// should defer env.Close().
func initSeed(ctx context.Context, migrate bool) (*seedEnv, error) {
	if err := cfg.Validate("seed"); err != nil {
		return nil, err
	}

	gc, err := newGeocoder(cfg.Geocode)
	if err != nil {
		return nil, err
	}

	s, err := sink.Open(ctx, cfg.Sink)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := migrateSink(ctx, s); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	return &seedEnv{Sink: s, Geocoder: gc}, nil
}

// migrateSink applies the schema of sinks that own one. Sinks without a
// schema are left alone.
func migrateSink(ctx context.Context, s sink.Sink) error {
	m, ok := s.(sink.Migrator)
	if !ok {
		zap.L().Info("sink has no schema to migrate", zap.String("driver", cfg.Sink.Driver))
		return nil
	}
	return eris.Wrap(m.Migrate(ctx), "migrate sink")
}

// newGeocoder builds the geocode client selected by c.Provider.
func newGeocoder(c config.GeocodeConfig) (geocode.Client, error) {
	nominatim := func() *geocode.Nominatim {
		return geocode.NewNominatim(
			geocode.WithBaseURL(c.BaseURL),
			geocode.WithUserAgent(c.UserAgent),
			geocode.WithRateLimit(c.RateLimit),
			geocode.WithRegion(c.Region),
		)
	}
	google := func() *geocode.Google {
		return geocode.NewGoogle(
			geocode.WithGoogleAPIKey(c.GoogleAPIKey),
			geocode.WithRegion(c.Region),
		)
	}

	switch c.Provider {
	case config.ProviderNominatim:
		return nominatim(), nil
	case config.ProviderGoogle:
		return google(), nil
	case config.ProviderCascade:
		return geocode.NewCascadeClient(nominatim(), google()), nil
	default:
		return nil, eris.Errorf("unsupported geocode provider %q", c.Provider)
	}
}
