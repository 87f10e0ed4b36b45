package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/farm-seeder/internal/geo"
	"github.com/sells-group/farm-seeder/internal/model"
)

// dialect captures what differs between the database/sql backends.
type dialect struct {
	name string
	// quote quotes a table or index identifier.
	quote func(string) string
	// locationIn wraps the WKT placeholder on insert.
	locationIn string
	// locationOut selects the location as WKT.
	locationOut string
	// autoID is true when the table assigns ids itself.
	autoID bool
	schema func(table string) []string
}

var mysqlDialect = dialect{
	name:        "mysql",
	quote:       quoteMySQL,
	locationIn:  "ST_GeomFromText(?, 4326, 'axis-order=long-lat')",
	locationOut: "ST_AsText(location, 'axis-order=long-lat')",
	autoID:      true,
	schema: func(table string) []string {
		t := quoteMySQL(table)
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + t + ` (
				id         BIGINT AUTO_INCREMENT PRIMARY KEY,
				name       VARCHAR(255) NOT NULL,
				type       VARCHAR(16) NOT NULL DEFAULT 'lead',
				status     VARCHAR(16) NOT NULL DEFAULT 'unclaimed',
				products   JSON NOT NULL,
				contact    JSON NOT NULL,
				owner_id   CHAR(36) NULL,
				location   POINT NOT NULL SRID 4326,
				lat        DOUBLE NOT NULL,
				lon        DOUBLE NOT NULL,
				geohash    VARCHAR(12) NOT NULL,
				created_at VARCHAR(40) NOT NULL,
				INDEX idx_name (name),
				INDEX idx_lat_lon (lat, lon),
				INDEX idx_geohash (geohash),
				SPATIAL INDEX idx_location (location)
			)`,
		}
	},
}

var sqliteDialect = dialect{
	name:        "sqlite",
	quote:       quoteSQLite,
	locationIn:  "?",
	locationOut: "location",
	schema: func(table string) []string {
		t := quoteSQLite(table)
		idx := func(suffix string) string { return quoteSQLite(table + "_" + suffix) }
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + t + ` (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				type       TEXT NOT NULL DEFAULT 'lead',
				status     TEXT NOT NULL DEFAULT 'unclaimed',
				products   TEXT NOT NULL DEFAULT '[]',
				contact    TEXT NOT NULL DEFAULT '{}',
				owner_id   TEXT,
				location   TEXT NOT NULL,
				lat        REAL NOT NULL,
				lon        REAL NOT NULL,
				geohash    TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS ` + idx("name_idx") + ` ON ` + t + ` (name)`,
			`CREATE INDEX IF NOT EXISTS ` + idx("lat_lon_idx") + ` ON ` + t + ` (lat, lon)`,
			`CREATE INDEX IF NOT EXISTS ` + idx("geohash_idx") + ` ON ` + t + ` (geohash)`,
		}
	},
}

func quoteMySQL(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func quoteSQLite(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SQL stores farms through database/sql. Locations are kept as WKT plus
// plain lat/lon columns that back the search prefilter.
type SQL struct {
	db     *sql.DB
	d      dialect
	table  string
	quoted string
	now    func() time.Time
}

// OpenMySQL connects with a go-sql-driver DSN such as
// "user:pass@tcp(host:3306)/plaasstop".
func OpenMySQL(ctx context.Context, dsn, table string) (*SQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: parse dsn")
	}
	cfg.ParseTime = false
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["charset"] = "utf8mb4"

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "mysql: connector")
	}
	conn := sql.OpenDB(connector)
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxLifetime(30 * time.Minute)
	return newSQL(conn, mysqlDialect, table), nil
}

// OpenSQLite opens a SQLite database file and configures WAL mode.
func OpenSQLite(ctx context.Context, path, table string) (*SQL, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return newSQL(conn, sqliteDialect, table), nil
}

func newSQL(conn *sql.DB, d dialect, table string) *SQL {
	return &SQL{
		db:     conn,
		d:      d,
		table:  table,
		quoted: d.quote(table),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate implements Migrator.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "%s: migrate", s.d.name)
		}
	}
	return nil
}

// Exists implements Sink.
func (s *SQL) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+s.quoted+" WHERE name = ?)", name,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "%s: check %q", s.d.name, name)
	}
	return exists, nil
}

// Insert implements Sink. The created_at timestamp is assigned here in UTC
// and stored as RFC 3339 text so both dialects read it back the same way.
func (s *SQL) Insert(ctx context.Context, rec *model.FarmRecord) (string, error) {
	loc, err := rec.Location.WKT()
	if err != nil {
		return "", eris.Wrapf(err, "%s: encode location", s.d.name)
	}
	products, err := json.Marshal(rec.Products)
	if err != nil {
		return "", eris.Wrapf(err, "%s: encode products", s.d.name)
	}
	contact, err := json.Marshal(rec.Contact)
	if err != nil {
		return "", eris.Wrapf(err, "%s: encode contact", s.d.name)
	}
	createdAt := s.now()

	cols := "name, type, status, products, contact, location, lat, lon, geohash, created_at"
	vals := "?, ?, ?, ?, ?, " + s.d.locationIn + ", ?, ?, ?, ?"
	args := []any{
		rec.Name, string(rec.Kind), string(rec.Status), string(products), string(contact),
		loc, rec.Location.Lat, rec.Location.Lon, rec.Geohash, createdAt.Format(time.RFC3339Nano),
	}

	var id string
	if !s.d.autoID {
		id = uuid.New().String()
		cols = "id, " + cols
		vals = "?, " + vals
		args = append([]any{id}, args...)
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO "+s.quoted+" ("+cols+") VALUES ("+vals+")", args...)
	if err != nil {
		return "", eris.Wrapf(err, "%s: insert farm %q", s.d.name, rec.Name)
	}
	if s.d.autoID {
		n, err := res.LastInsertId()
		if err != nil {
			return "", eris.Wrapf(err, "%s: read id of %q", s.d.name, rec.Name)
		}
		id = strconv.FormatInt(n, 10)
	}

	rec.ID = id
	rec.CreatedAt = createdAt
	return id, nil
}

// Search implements Searcher. Rows inside the bounding box are filtered by
// great-circle distance.
func (s *SQL) Search(ctx context.Context, center geo.Point, radiusKm float64, limit int) ([]Hit, error) {
	box := geo.BoundingBox(center, radiusKm)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, status, products, contact, `+s.d.locationOut+`, geohash, created_at
		FROM `+s.quoted+`
		WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?`,
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: search", s.d.name)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h                          Hit
			kind, status, loc, created string
			products, contact          []byte
		)
		if err := rows.Scan(&h.ID, &h.Name, &kind, &status, &products, &contact, &loc,
			&h.Geohash, &created); err != nil {
			return nil, eris.Wrapf(err, "%s: scan farm", s.d.name)
		}
		h.Kind = model.Kind(kind)
		h.Status = model.Status(status)
		if err := json.Unmarshal(products, &h.Products); err != nil {
			return nil, eris.Wrapf(err, "%s: decode products of %q", s.d.name, h.Name)
		}
		if err := json.Unmarshal(contact, &h.Contact); err != nil {
			return nil, eris.Wrapf(err, "%s: decode contact of %q", s.d.name, h.Name)
		}
		if h.Location, err = geo.ParseWKT(loc); err != nil {
			return nil, eris.Wrapf(err, "%s: decode location of %q", s.d.name, h.Name)
		}
		if h.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, eris.Wrapf(err, "%s: decode created_at of %q", s.d.name, h.Name)
		}

		h.DistanceKm = geo.DistanceKm(center, h.Location)
		if h.DistanceKm <= radiusKm {
			hits = append(hits, h)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "%s: iterate farms", s.d.name)
	}
	return sortHits(hits, limit), nil
}

// Ping implements Sink.
func (s *SQL) Ping(ctx context.Context) error {
	return eris.Wrapf(s.db.PingContext(ctx), "%s: ping", s.d.name)
}

// Close implements Sink.
func (s *SQL) Close() error {
	return s.db.Close()
}
