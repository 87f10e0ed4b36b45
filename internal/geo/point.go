// Package geo holds the geographic point type shared by every sink and the
// encodings each backend expects for it.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// SRID is the spatial reference used for all stored points (WGS 84).
const SRID = 4326

// GeohashPrecision is the number of geohash characters stored with each farm.
const GeohashPrecision = 10

const earthRadiusKm = 6371.0088

// Point is a WGS 84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the point is a finite coordinate inside WGS 84 bounds.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return eris.New("geo: coordinate is not finite")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("geo: latitude %f out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Errorf("geo: longitude %f out of range", p.Lon)
	}
	return nil
}

// String formats the point as "(lat, lon)".
func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// Geom returns the point as a go-geom point with SRID 4326. X is longitude.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
}

// WKT returns the well-known text form, POINT(lon lat).
func (p Point) WKT() (string, error) {
	s, err := wkt.Marshal(p.Geom())
	if err != nil {
		return "", eris.Wrap(err, "geo: marshal wkt")
	}
	return strings.Replace(s, "POINT (", "POINT(", 1), nil
}

// EWKT returns the PostGIS extended text form, SRID=4326;POINT(lon lat).
func (p Point) EWKT() (string, error) {
	s, err := p.WKT()
	if err != nil {
		return "", err
	}
	return "SRID=" + strconv.Itoa(SRID) + ";" + s, nil
}

// EWKB returns the little-endian extended WKB encoding with SRID 4326.
func (p Point) EWKB() ([]byte, error) {
	data, err := ewkb.Marshal(p.Geom(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: marshal ewkb")
	}
	return data, nil
}

// Geohash encodes the point at the given precision.
func (p Point) Geohash(precision int) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, precision)
}

// ParseWKT decodes a WKT or EWKT point. An SRID other than 4326 is rejected.
func ParseWKT(s string) (Point, error) {
	s = strings.TrimSpace(s)
	if prefix, rest, ok := strings.Cut(s, ";"); ok && strings.HasPrefix(strings.ToUpper(prefix), "SRID=") {
		srid, err := strconv.Atoi(prefix[len("SRID="):])
		if err != nil {
			return Point{}, eris.Wrapf(err, "geo: parse srid %q", prefix)
		}
		if srid != SRID {
			return Point{}, eris.Errorf("geo: unsupported srid %d", srid)
		}
		s = rest
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geo: parse wkt %q", s)
	}
	return fromGeom(g)
}

// ParseEWKB decodes an EWKB point as returned by PostGIS.
func ParseEWKB(data []byte) (Point, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Point{}, eris.Wrap(err, "geo: parse ewkb")
	}
	return fromGeom(g)
}

const geohashAlphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// FromGeohash returns the center of the geohash cell.
func FromGeohash(hash string) (Point, error) {
	if hash == "" {
		return Point{}, eris.New("geo: empty geohash")
	}
	if i := strings.IndexFunc(hash, func(r rune) bool {
		return !strings.ContainsRune(geohashAlphabet, r)
	}); i >= 0 {
		return Point{}, eris.Errorf("geo: invalid geohash %q at offset %d", hash, i)
	}
	c := geohash.Decode(hash).Center()
	return Point{Lat: c.Lat(), Lon: c.Lng()}, nil
}

func fromGeom(g geom.T) (Point, error) {
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, eris.Errorf("geo: expected point, got %T", g)
	}
	if pt.Empty() {
		return Point{}, eris.New("geo: empty point")
	}
	return Point{Lat: pt.Y(), Lon: pt.X()}, nil
}

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
