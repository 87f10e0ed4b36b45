package sink

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-seeder/internal/db"
	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
)

// PostGIS stores farms in a Postgres table with a geography(Point, 4326)
// location column.
type PostGIS struct {
	pool   db.Pool
	table  string
	quoted string
}

// NewPostGIS wraps an open pool.
func NewPostGIS(pool db.Pool, table string) *PostGIS {
	return &PostGIS{pool: pool, table: table, quoted: db.QuoteTable(table)}
}

// OpenPostGIS connects to dsn.
func OpenPostGIS(ctx context.Context, dsn, table string) (*PostGIS, error) {
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: connect")
	}
	return NewPostGIS(pool, table), nil
}

// Exists implements Sink.
func (p *PostGIS) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+p.quoted+" WHERE name = $1)", name,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgis: check %q", name)
	}
	return exists, nil
}

// Insert implements Sink.
func (p *PostGIS) Insert(ctx context.Context, rec *model.FarmRecord) (string, error) {
	loc, err := rec.Location.WKT()
	if err != nil {
		return "", eris.Wrap(err, "postgis: encode location")
	}
	contact, err := json.Marshal(rec.Contact)
	if err != nil {
		return "", eris.Wrap(err, "postgis: encode contact")
	}

	var (
		id        int64
		createdAt time.Time
	)
	err = p.pool.QueryRow(ctx,
		`INSERT INTO `+p.quoted+` (name, type, status, products, contact, location, geohash)
		VALUES ($1, $2, $3, $4, $5, ST_GeomFromText($6, 4326)::geography, $7)
		RETURNING id, created_at`,
		rec.Name, string(rec.Kind), string(rec.Status), rec.Products, string(contact), loc, rec.Geohash,
	).Scan(&id, &createdAt)
	if err != nil {
		return "", eris.Wrapf(err, "postgis: insert farm %q", rec.Name)
	}

	rec.ID = strconv.FormatInt(id, 10)
	rec.CreatedAt = createdAt
	return rec.ID, nil
}

// Search implements Searcher using the GIST index on location.
func (p *PostGIS) Search(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, type, status, products, contact, ST_AsEWKB(location::geometry),
			COALESCE(geohash, ''), created_at,
			ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) / 1000.0 AS distance_km
		FROM `+p.quoted+`
		WHERE location IS NOT NULL
			AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance_km
		LIMIT $4`,
		center.Lon, center.Lat, radiusKm*1000, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgis: search")
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h            Hit
			id           int64
			kind, status string
			contact      []byte
			location     []byte
		)
		if err := rows.Scan(&id, &h.Name, &kind, &status, &h.Products, &contact, &location,
			&h.Geohash, &h.CreatedAt, &h.DistanceKm); err != nil {
			return nil, eris.Wrap(err, "postgis: scan farm")
		}
		h.ID = strconv.FormatInt(id, 10)
		h.Kind = model.Kind(kind)
		h.Status = model.Status(status)
		if len(contact) > 0 {
			if err := json.Unmarshal(contact, &h.Contact); err != nil {
				return nil, eris.Wrapf(err, "postgis: decode contact of %q", h.Name)
			}
		}
		if h.Location, err = geo.ParseEWKB(location); err != nil {
			return nil, eris.Wrapf(err, "postgis: decode location of %q", h.Name)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgis: iterate farms")
	}
	return hits, nil
}

// Migrate implements Migrator.
func (p *PostGIS) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, p.pool, p.table)
}

// Ping implements Sink.
func (p *PostGIS) Ping(ctx context.Context) error {
	return eris.Wrap(p.pool.Ping(ctx), "postgis: ping")
}

// Close implements Sink.
func (p *PostGIS) Close() error {
	p.pool.Close()
	return nil
}
