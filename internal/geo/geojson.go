package geo

import "github.com/rotisserie/eris"

// GeoJSONPoint is the document-store form of a point. MongoDB's 2dsphere
// index reads this shape natively.
type GeoJSONPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// GeoJSON returns the point as {type: "Point", coordinates: [lon, lat]}.
func (p Point) GeoJSON() GeoJSONPoint {
	return GeoJSONPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}}
}

// FromGeoJSON decodes a GeoJSON point.
func FromGeoJSON(g GeoJSONPoint) (Point, error) {
	if g.Type != "Point" {
		return Point{}, eris.Errorf("geo: expected GeoJSON Point, got %q", g.Type)
	}
	if len(g.Coordinates) < 2 {
		return Point{}, eris.Errorf("geo: GeoJSON point has %d coordinates", len(g.Coordinates))
	}
	return Point{Lat: g.Coordinates[1], Lon: g.Coordinates[0]}, nil
}
