// Package waypoint places routing via-points on roads inside a grid cell.
// Candidates come from three priority-ranked strategies (road-road
// intersections, clipped-segment midpoints, nearest point to a reference);
// a cell without roads degrades to its geometric center.
package waypoint

import (
	"log"
	"sort"

	"squadrat-planner/internal/geometry"
	"squadrat-planner/internal/models"
)

// Candidate priority tiers. Roads that also intersect the next cell in the
// sequence get connectingBoost on top of their tier.
const (
	priorityIntersection = 30
	priorityMidpoint     = 20
	priorityNearest      = 10
	connectingBoost      = 5
)

// Options controls sequence awareness of a placement
type Options struct {
	// Prev and Next are the actual neighboring waypoints of the cell in the
	// fixed visiting order; nil in neutral mode.
	Prev *models.Coordinates
	Next *models.Coordinates
	// NextCell marks roads that continue into the following cell as
	// connecting roads.
	NextCell *models.CellBounds
	// MaxAlternatives caps the number of runner-up points retained on the
	// returned waypoint.
	MaxAlternatives int
}

type candidate struct {
	point    models.Coordinates
	typ      models.WaypointType
	priority int
}

// Place finds the best through-waypoint for a cell given the road geometry.
// Falls back to the cell center, flagged HasRoad=false, when no road
// intersects the cell.
func Place(roads []models.RoadFeature, cell models.CellBounds, gridCoords models.CellKey, opts Options) models.Waypoint {
	type clippedRoad struct {
		feature    models.RoadFeature
		runs       [][]models.Coordinates
		connecting bool
	}

	var clipped []clippedRoad
	for _, road := range roads {
		runs := clipToCell(road.Points, cell)
		if len(runs) == 0 {
			continue
		}
		cr := clippedRoad{feature: road, runs: runs}
		if opts.NextCell != nil {
			cr.connecting = intersectsCell(road.Points, *opts.NextCell)
		}
		clipped = append(clipped, cr)
	}

	if len(clipped) == 0 {
		log.Printf("[WAYPOINT] No roads in cell (%d,%d), using center fallback", gridCoords.I, gridCoords.J)
		return models.Waypoint{
			Coords:     cell.Center(),
			Type:       models.WaypointCenter,
			GridCoords: gridCoords,
			HasRoad:    false,
		}
	}

	reference := referencePoint(cell, opts)

	var candidates []candidate

	boost := func(connecting bool) int {
		if connecting {
			return connectingBoost
		}
		return 0
	}

	// Strategy 1: pairwise road-road intersections.
	for a := 0; a < len(clipped); a++ {
		for b := a + 1; b < len(clipped); b++ {
			pairBoost := 0
			if clipped[a].connecting || clipped[b].connecting {
				pairBoost = connectingBoost
			}
			for _, runA := range clipped[a].runs {
				for _, runB := range clipped[b].runs {
					for i := 1; i < len(runA); i++ {
						for j := 1; j < len(runB); j++ {
							if pt, ok := segmentIntersection(runA[i-1], runA[i], runB[j-1], runB[j]); ok {
								candidates = append(candidates, candidate{
									point:    pt,
									typ:      models.WaypointIntersection,
									priority: priorityIntersection + pairBoost,
								})
							}
						}
					}
				}
			}
		}
	}

	// Strategy 2: midpoint of each clipped run.
	for _, cr := range clipped {
		for _, run := range cr.runs {
			candidates = append(candidates, candidate{
				point:    midpointByLength(run),
				typ:      models.WaypointMidpoint,
				priority: priorityMidpoint + boost(cr.connecting),
			})
		}
	}

	// Strategy 3: nearest point on each road to the reference point.
	for _, cr := range clipped {
		best := models.Coordinates{}
		bestDist := -1.0
		for _, run := range cr.runs {
			for i := 1; i < len(run); i++ {
				pt := nearestPointOnSegment(reference, run[i-1], run[i])
				d := geometry.HaversineMeters(reference, pt)
				if bestDist < 0 || d < bestDist {
					bestDist = d
					best = pt
				}
			}
		}
		if bestDist >= 0 {
			candidates = append(candidates, candidate{
				point:    best,
				typ:      models.WaypointNearest,
				priority: priorityNearest + boost(cr.connecting),
			})
		}
	}

	// Priority descending; ties broken by distance to the sequence
	// neighbors, or to the cell center in neutral mode.
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].priority != candidates[b].priority {
			return candidates[a].priority > candidates[b].priority
		}
		return tieBreakCost(candidates[a].point, cell, opts) < tieBreakCost(candidates[b].point, cell, opts)
	})

	best := candidates[0]
	wp := models.Waypoint{
		Coords:     best.point,
		Type:       best.typ,
		Priority:   best.priority,
		GridCoords: gridCoords,
		HasRoad:    true,
	}

	for _, c := range candidates[1:] {
		if len(wp.Alternatives) >= opts.MaxAlternatives {
			break
		}
		if samePlace(c.point, best.point) || containsPlace(wp.Alternatives, c.point) {
			continue
		}
		wp.Alternatives = append(wp.Alternatives, c.point)
	}

	return wp
}

// referencePoint is what "close" means for the nearest strategy: the midpoint
// of the sequence neighbors when known, otherwise the cell center
func referencePoint(cell models.CellBounds, opts Options) models.Coordinates {
	switch {
	case opts.Prev != nil && opts.Next != nil:
		return models.Coordinates{
			Lat: (opts.Prev.Lat + opts.Next.Lat) / 2,
			Lng: (opts.Prev.Lng + opts.Next.Lng) / 2,
		}
	case opts.Prev != nil:
		return *opts.Prev
	case opts.Next != nil:
		return *opts.Next
	default:
		return cell.Center()
	}
}

func tieBreakCost(p models.Coordinates, cell models.CellBounds, opts Options) float64 {
	if opts.Prev == nil && opts.Next == nil {
		return geometry.HaversineMeters(p, cell.Center())
	}
	cost := 0.0
	if opts.Prev != nil {
		cost += geometry.HaversineMeters(p, *opts.Prev)
	}
	if opts.Next != nil {
		cost += geometry.HaversineMeters(p, *opts.Next)
	}
	return cost
}

// midpointByLength walks the polyline to its half-length point
func midpointByLength(run []models.Coordinates) models.Coordinates {
	total := 0.0
	for i := 1; i < len(run); i++ {
		total += geometry.HaversineMeters(run[i-1], run[i])
	}
	if total == 0 {
		return run[0]
	}

	half := total / 2
	walked := 0.0
	for i := 1; i < len(run); i++ {
		seg := geometry.HaversineMeters(run[i-1], run[i])
		if walked+seg >= half {
			t := (half - walked) / seg
			return models.Coordinates{
				Lat: run[i-1].Lat + t*(run[i].Lat-run[i-1].Lat),
				Lng: run[i-1].Lng + t*(run[i].Lng-run[i-1].Lng),
			}
		}
		walked += seg
	}
	return run[len(run)-1]
}

func samePlace(a, b models.Coordinates) bool {
	return models.RoundCoordinate(a.Lat) == models.RoundCoordinate(b.Lat) &&
		models.RoundCoordinate(a.Lng) == models.RoundCoordinate(b.Lng)
}

func containsPlace(list []models.Coordinates, p models.Coordinates) bool {
	for _, c := range list {
		if samePlace(c, p) {
			return true
		}
	}
	return false
}
