// Package sink stores farm records in one of several backends: PostGIS,
// MySQL, SQLite, a PostgREST endpoint (Supabase), MongoDB or memory.
package sink

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-seeder/internal/config"
	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
)

// Sink receives farm records. Implementations are used from a single
// goroutine by the seeder; the HTTP server only calls Ping and Search.
type Sink interface {
	// Exists reports whether a record with exactly this name is stored.
	Exists(ctx context.Context, name string) (bool, error)
	// Insert stores rec and returns the backend-assigned id. It also sets
	// rec.ID, and rec.CreatedAt when the backend reports it.
	Insert(ctx context.Context, rec *model.FarmRecord) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Searcher is implemented by sinks that can answer radius queries.
type Searcher interface {
	// Search returns records within radiusKm of center, nearest first.
	Search(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]Hit, error)
}

// Migrator is implemented by sinks that own their schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// Hit is a search result.
type Hit struct {
	model.FarmRecord
	DistanceKm float64 `json:"distance_km"`
}

// DefaultSearchLimit caps Search when the caller passes limit <= 0.
const DefaultSearchLimit = 100

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	log := zap.L().With(zap.String("component", "sink"), zap.String("driver", cfg.Driver))

	var (
		s   Sink
		err error
	)
	switch cfg.Driver {
	case config.DriverPostGIS:
		s, err = OpenPostGIS(ctx, cfg.DatabaseURL, cfg.Table)
	case config.DriverMySQL:
		s, err = OpenMySQL(ctx, cfg.DatabaseURL, cfg.Table)
	case config.DriverSQLite:
		s, err = OpenSQLite(ctx, cfg.DatabaseURL, cfg.Table)
	case config.DriverREST:
		s, err = NewREST(cfg.REST.URL, cfg.REST.Key, cfg.Table), nil
	case config.DriverMongo:
		s, err = OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Table)
	case config.DriverMemory:
		s, err = NewMemory(), nil
	default:
		return nil, eris.Errorf("sink: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, eris.Wrapf(err, "sink: ping %s", cfg.Driver)
	}
	log.Debug("sink opened", zap.String("table", cfg.Table))
	return s, nil
}

// sortHits orders hits nearest first and applies the limit.
func sortHits(hits []Hit, limit int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
