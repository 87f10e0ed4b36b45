package geo

import "math"

// boxPadDeg absorbs float rounding at the box edge.
const boxPadDeg = 1e-9

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MinLon, MaxLat, MaxLon float64
}

// BoundingBox returns a box that contains every point within radiusKm of
// center on the sphere DistanceKm measures. The box is a prefilter for
// stores without spatial indexes; callers still check DistanceKm. When the
// circle reaches a pole or crosses the antimeridian the box widens to the
// full longitude range.
func BoundingBox(center Point, radiusKm float64) Box {
	delta := radiusKm / earthRadiusKm
	dLat := delta*180/math.Pi + boxPadDeg
	b := Box{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
		MinLon: -180,
		MaxLon: 180,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(-90, b.MinLat)
		b.MaxLat = math.Min(90, b.MaxLat)
		return b
	}

	s := math.Sin(delta) / math.Cos(center.Lat*math.Pi/180)
	if delta >= math.Pi/2 || s >= 1 {
		return b
	}
	dLon := math.Asin(s)*180/math.Pi + boxPadDeg
	if center.Lon-dLon < -180 || center.Lon+dLon > 180 {
		return b
	}
	b.MinLon = center.Lon - dLon
	b.MaxLon = center.Lon + dLon
	return b
}

// Contains reports whether p lies inside the box, edges included.
func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}
