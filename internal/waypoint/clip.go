package waypoint

import (
	"squadrat-planner/internal/models"
)

// clipSegment clips the segment a-b to the cell rectangle (Liang-Barsky).
// Returns the clipped endpoints and whether any part lies inside.
func clipSegment(a, b models.Coordinates, cell models.CellBounds) (models.Coordinates, models.Coordinates, bool) {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat

	t0, t1 := 0.0, 1.0

	clip := func(p, q float64) bool {
		if p == 0 {
			return q >= 0
		}
		r := q / p
		if p < 0 {
			if r > t1 {
				return false
			}
			if r > t0 {
				t0 = r
			}
		} else {
			if r < t0 {
				return false
			}
			if r < t1 {
				t1 = r
			}
		}
		return true
	}

	if !clip(-dx, a.Lng-cell.West) ||
		!clip(dx, cell.East-a.Lng) ||
		!clip(-dy, a.Lat-cell.South) ||
		!clip(dy, cell.North-a.Lat) {
		return models.Coordinates{}, models.Coordinates{}, false
	}

	p0 := models.Coordinates{Lat: a.Lat + t0*dy, Lng: a.Lng + t0*dx}
	p1 := models.Coordinates{Lat: a.Lat + t1*dy, Lng: a.Lng + t1*dx}
	return p0, p1, true
}

// clipToCell clips a road polyline to the cell rectangle. A road entering
// and leaving the cell repeatedly yields multiple runs.
func clipToCell(points []models.Coordinates, cell models.CellBounds) [][]models.Coordinates {
	var runs [][]models.Coordinates
	var current []models.Coordinates

	flush := func() {
		if len(current) >= 2 {
			runs = append(runs, current)
		}
		current = nil
	}

	for i := 1; i < len(points); i++ {
		p0, p1, ok := clipSegment(points[i-1], points[i], cell)
		if !ok {
			flush()
			continue
		}
		if len(current) == 0 {
			current = append(current, p0)
		} else if !approxEqual(current[len(current)-1], p0) {
			// Segment re-enters at a different point: separate run.
			flush()
			current = append(current, p0)
		}
		current = append(current, p1)
	}
	flush()

	return runs
}

// intersectsCell reports whether any segment of the polyline crosses the cell
func intersectsCell(points []models.Coordinates, cell models.CellBounds) bool {
	for i := 1; i < len(points); i++ {
		if _, _, ok := clipSegment(points[i-1], points[i], cell); ok {
			return true
		}
	}
	return false
}

// segmentIntersection returns the crossing point of two segments, if they
// properly intersect. Computed in plain lat/lng space; cells are small enough
// that planar math is fine here.
func segmentIntersection(a1, a2, b1, b2 models.Coordinates) (models.Coordinates, bool) {
	d1x := a2.Lng - a1.Lng
	d1y := a2.Lat - a1.Lat
	d2x := b2.Lng - b1.Lng
	d2y := b2.Lat - b1.Lat

	denom := d1x*d2y - d1y*d2x
	if denom == 0 {
		return models.Coordinates{}, false
	}

	t := ((b1.Lng-a1.Lng)*d2y - (b1.Lat-a1.Lat)*d2x) / denom
	u := ((b1.Lng-a1.Lng)*d1y - (b1.Lat-a1.Lat)*d1x) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return models.Coordinates{}, false
	}

	return models.Coordinates{Lat: a1.Lat + t*d1y, Lng: a1.Lng + t*d1x}, true
}

// nearestPointOnSegment projects p onto the segment a-b
func nearestPointOnSegment(p, a, b models.Coordinates) models.Coordinates {
	dx := b.Lng - a.Lng
	dy := b.Lat - a.Lat
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return a
	}

	t := ((p.Lng-a.Lng)*dx + (p.Lat-a.Lat)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return models.Coordinates{Lat: a.Lat + t*dy, Lng: a.Lng + t*dx}
}

func approxEqual(a, b models.Coordinates) bool {
	const eps = 1e-9
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return dLat > -eps && dLat < eps && dLng > -eps && dLng < eps
}
