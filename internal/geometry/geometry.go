// Package geometry holds the geometric predicates the grid and optimizer are
// built on: bounding boxes, even-odd ray casting, polygon-with-holes
// membership and geodesic distance.
package geometry

import (
	"fmt"
	"math"

	"squadrat-planner/internal/models"
)

// ErrInvalidGeometry is returned for degenerate input geometry
type ErrInvalidGeometry struct {
	Reason string
}

func (e *ErrInvalidGeometry) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// BoundingBox computes the axis-aligned bounds of a ring
func BoundingBox(ring models.Ring) (models.BoundingBox, error) {
	if len(ring) < 2 {
		return models.BoundingBox{}, &ErrInvalidGeometry{Reason: fmt.Sprintf("ring has %d points, need at least 2", len(ring))}
	}

	box := models.BoundingBox{
		MinLat: ring[0].Lat, MaxLat: ring[0].Lat,
		MinLng: ring[0].Lng, MaxLng: ring[0].Lng,
	}
	for _, p := range ring[1:] {
		if p.Lat < box.MinLat {
			box.MinLat = p.Lat
		}
		if p.Lat > box.MaxLat {
			box.MaxLat = p.Lat
		}
		if p.Lng < box.MinLng {
			box.MinLng = p.Lng
		}
		if p.Lng > box.MaxLng {
			box.MaxLng = p.Lng
		}
	}
	return box, nil
}

// PointInRing tests point membership with the even-odd ray casting rule.
// Behavior for points exactly on a vertex or edge is implementation-defined.
// The ring may or may not duplicate its closing vertex; both give the same
// answer because the test always closes the loop implicitly.
func PointInRing(lat, lng float64, ring models.Ring) bool {
	n := len(ring)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		yi, xi := ring[i].Lat, ring[i].Lng
		yj, xj := ring[j].Lat, ring[j].Lng

		if (yi > lat) != (yj > lat) {
			crossLng := (xj-xi)*(lat-yi)/(yj-yi) + xi
			if lng < crossLng {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// PointInPolygon reports whether the point is inside the outer ring and
// inside none of the holes
func PointInPolygon(lat, lng float64, poly models.Polygon) bool {
	if !PointInRing(lat, lng, poly.Outer) {
		return false
	}
	for _, hole := range poly.Holes {
		if PointInRing(lat, lng, hole) {
			return false
		}
	}
	return true
}

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points
func HaversineMeters(a, b models.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
