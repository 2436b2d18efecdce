// Package routing turns selected cells into a rideable route: road-aware
// waypoint placement, two-phase sequencing (neutral order first, then
// sequence-aware refinement), an iterative improvement loop, and submission
// to the external routing service behind a tiered fallback chain.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log"

	"squadrat-planner/internal/geometry"
	"squadrat-planner/internal/models"
	"squadrat-planner/internal/roads"
	"squadrat-planner/internal/routeservice"
	"squadrat-planner/internal/tsp"
	"squadrat-planner/internal/waypoint"
)

const (
	maxRefinementRounds      = 5
	maxAlternativesPerCell   = 3
	maxSkeletonIntermediates = 8
)

// mergeThresholds are the escalating distances (meters) under which adjacent
// waypoints are merged when the routing service reports a coverage error
var mergeThresholds = []float64{500, 1000, 2000}

// Request is one route-planning call
type Request struct {
	Start     models.Coordinates    `json:"start"`
	Cells     []models.SelectedCell `json:"cells"`
	Profile   string                `json:"profile"`
	Roundtrip bool                  `json:"roundtrip"`
}

// ErrRoutingExhausted is returned when every fallback tier failed
type ErrRoutingExhausted struct {
	LastTier string
	LastErr  error
}

func (e *ErrRoutingExhausted) Error() string {
	return fmt.Sprintf("routing exhausted after %s tier: %v", e.LastTier, e.LastErr)
}

func (e *ErrRoutingExhausted) Unwrap() error {
	return e.LastErr
}

// Planner composes the waypoint placer, the TSP solver and the two external
// services
type Planner struct {
	roads    roads.Fetcher
	routeSvc routeservice.Service
}

// NewPlanner creates a route planner
func NewPlanner(roadFetcher roads.Fetcher, svc routeservice.Service) *Planner {
	return &Planner{roads: roadFetcher, routeSvc: svc}
}

// PlanRoute runs the full pipeline for one request
func (p *Planner) PlanRoute(ctx context.Context, req *Request) (*models.Route, error) {
	if len(req.Cells) == 0 {
		return nil, &ErrRoutingExhausted{LastTier: "input", LastErr: errors.New("no cells to route")}
	}
	profile := req.Profile
	if profile == "" {
		profile = routeservice.Profiles[0]
	}

	log.Printf("[PLAN] Starting route plan: cells=%d profile=%s roundtrip=%v",
		len(req.Cells), profile, req.Roundtrip)

	roadFeatures, err := p.roads.FetchForCells(ctx, req.Cells, profile)
	if err != nil {
		// Road data is an optimization, not a requirement; cells without
		// roads degrade to center waypoints.
		log.Printf("[PLAN] Road fetch degraded: err=%v", err)
		roadFeatures = nil
	}

	// Phase 1: neutral placement, order-independent.
	neutral := make([]models.Waypoint, len(req.Cells))
	for i, cell := range req.Cells {
		neutral[i] = waypoint.Place(roadFeatures, cell.Bounds, cell.GridCoords, waypoint.Options{})
	}

	// Fix the visiting order once; it is never re-derived from scratch.
	points := make([]models.Coordinates, len(neutral))
	for i, wp := range neutral {
		points[i] = wp.Coords
	}
	order := tsp.SolveOrder(req.Start, points, req.Roundtrip, 0)

	// Phase 2: sequence-aware re-placement along the fixed order.
	sequence := p.refineForOrder(req, roadFeatures, neutral, order)

	// Bounded improvement loop: alternative swaps alternating with 2-opt.
	p.refinementLoop(req.Start, sequence, req.Roundtrip)

	return p.submitWithFallbacks(ctx, req, sequence, profile)
}

// refineForOrder re-places each cell's waypoint with its actual neighbors in
// the fixed order as references, keeping runner-up alternatives for the
// refinement loop
func (p *Planner) refineForOrder(req *Request, roadFeatures []models.RoadFeature, neutral []models.Waypoint, order []int) []models.Waypoint {
	sequence := make([]models.Waypoint, len(order))

	for pos, idx := range order {
		cell := req.Cells[idx]

		prev := req.Start
		if pos > 0 {
			prev = neutral[order[pos-1]].Coords
		}

		opts := waypoint.Options{
			Prev:            &prev,
			MaxAlternatives: maxAlternativesPerCell,
		}
		if pos < len(order)-1 {
			nextCell := req.Cells[order[pos+1]]
			opts.Next = &neutral[order[pos+1]].Coords
			opts.NextCell = &nextCell.Bounds
		} else if req.Roundtrip {
			opts.Next = &req.Start
		}

		sequence[pos] = waypoint.Place(roadFeatures, cell.Bounds, cell.GridCoords, opts)
	}

	return sequence
}

// refinementLoop alternates alternative swaps with 2-opt passes until a round
// produces no improvement or the round cap is hit
func (p *Planner) refinementLoop(start models.Coordinates, sequence []models.Waypoint, roundtrip bool) {
	for round := 0; round < maxRefinementRounds; round++ {
		swapped := p.trySwapAlternatives(start, sequence, roundtrip)
		reordered := p.twoOptSequence(start, sequence, roundtrip)
		if !swapped && !reordered {
			log.Printf("[PLAN] Refinement converged: rounds=%d", round+1)
			return
		}
	}
	log.Printf("[PLAN] Refinement round cap reached: rounds=%d", maxRefinementRounds)
}

func routeCoords(start models.Coordinates, sequence []models.Waypoint, roundtrip bool) []models.Coordinates {
	coords := make([]models.Coordinates, 0, len(sequence)+2)
	coords = append(coords, start)
	for _, wp := range sequence {
		coords = append(coords, wp.Coords)
	}
	if roundtrip {
		coords = append(coords, start)
	}
	return coords
}

// trySwapAlternatives replaces waypoints by stored alternatives whenever that
// shortens the total route length
func (p *Planner) trySwapAlternatives(start models.Coordinates, sequence []models.Waypoint, roundtrip bool) bool {
	improved := false
	current := tsp.TotalLength(routeCoords(start, sequence, roundtrip))

	for i := range sequence {
		for a := range sequence[i].Alternatives {
			old := sequence[i].Coords
			sequence[i].Coords = sequence[i].Alternatives[a]

			trial := tsp.TotalLength(routeCoords(start, sequence, roundtrip))
			if trial < current-1e-9 {
				sequence[i].Alternatives[a] = old
				current = trial
				improved = true
			} else {
				sequence[i].Coords = old
			}
		}
	}
	return improved
}

// twoOptSequence runs a 2-opt pass over the waypoint sequence with the start
// point fixed, reversing segments in place
func (p *Planner) twoOptSequence(start models.Coordinates, sequence []models.Waypoint, roundtrip bool) bool {
	n := len(sequence)
	if n < 3 {
		return false
	}

	dist := geometry.HaversineMeters
	improved := false

	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			prev := start
			if i > 0 {
				prev = sequence[i-1].Coords
			}

			delta := dist(prev, sequence[j].Coords) - dist(prev, sequence[i].Coords)
			if j < n-1 {
				delta += dist(sequence[i].Coords, sequence[j+1].Coords) - dist(sequence[j].Coords, sequence[j+1].Coords)
			} else if roundtrip {
				delta += dist(sequence[i].Coords, start) - dist(sequence[j].Coords, start)
			}

			if delta < -1e-9 {
				for l, r := i, j; l < r; l, r = l+1, r-1 {
					sequence[l], sequence[r] = sequence[r], sequence[l]
				}
				improved = true
			}
		}
	}
	return improved
}

// submitWithFallbacks drives the tiered fallback chain:
// requested profile, alternate profiles on generic failures, progressive
// waypoint merging on coverage errors, then a minimal skeleton, then a
// terminal error.
func (p *Planner) submitWithFallbacks(ctx context.Context, req *Request, sequence []models.Waypoint, profile string) (*models.Route, error) {
	var skipped []models.CellKey
	var submitted []models.Waypoint
	for _, wp := range sequence {
		if wp.HasRoad {
			submitted = append(submitted, wp)
		} else {
			skipped = append(skipped, wp.GridCoords)
		}
	}

	points := make([]models.Coordinates, 0, len(submitted)+2)
	points = append(points, req.Start)
	for _, wp := range submitted {
		points = append(points, wp.Coords)
	}
	if req.Roundtrip {
		points = append(points, req.Start)
	}

	build := func(g *routeservice.RouteGeometry, profileUsed string, simplified, minimal bool) *models.Route {
		return &models.Route{
			Coordinates:         g.Points,
			DistanceKm:          g.DistanceKm,
			ElevationGainM:      g.ElevationGainM,
			TimeMin:             g.TimeMin,
			Waypoints:           sequence,
			SkippedSquareCoords: skipped,
			ProfileUsed:         profileUsed,
			Simplified:          simplified,
			Minimal:             minimal,
		}
	}

	// Tier 0: the requested profile.
	g, err := p.routeSvc.SubmitRoute(ctx, points, profile)
	if err == nil {
		return build(g, profile, false, false), nil
	}
	lastTier := "profile"
	lastErr := err

	// Tier 1: alternate profiles, only for generic (non-coverage) failures.
	if kindOf(err) != routeservice.KindCoverage {
		for _, alt := range routeservice.Profiles {
			if alt == profile {
				continue
			}
			log.Printf("[PLAN] Profile fallback: trying profile=%s after err=%v", alt, lastErr)
			g, err = p.routeSvc.SubmitRoute(ctx, points, alt)
			if err == nil {
				return build(g, alt, false, false), nil
			}
			lastErr = err
			if kindOf(err) == routeservice.KindCoverage {
				break
			}
		}
	}

	// Tier 2: progressive waypoint merging against coverage gaps.
	lastTier = "simplify"
	for _, threshold := range mergeThresholds {
		merged := mergeClosePoints(points, threshold)
		log.Printf("[PLAN] Simplify fallback: threshold=%.0fm points=%d->%d",
			threshold, len(points), len(merged))
		g, err = p.routeSvc.SubmitRoute(ctx, merged, profile)
		if err == nil {
			return build(g, profile, true, false), nil
		}
		lastErr = err
	}

	// Tier 3: minimal skeleton, one attempt.
	lastTier = "minimal"
	skeleton := minimalSkeleton(points)
	log.Printf("[PLAN] Minimal fallback: points=%d->%d", len(points), len(skeleton))
	g, err = p.routeSvc.SubmitRoute(ctx, skeleton, profile)
	if err == nil {
		return build(g, profile, true, true), nil
	}
	lastErr = err

	log.Printf("[ERROR] Routing exhausted: tier=%s err=%v", lastTier, lastErr)
	return nil, &ErrRoutingExhausted{LastTier: lastTier, LastErr: lastErr}
}

func kindOf(err error) routeservice.ErrorKind {
	var svcErr *routeservice.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return routeservice.KindTransport
}

// mergeClosePoints drops points closer than threshold to the previously kept
// one; the first and last points always survive
func mergeClosePoints(points []models.Coordinates, thresholdMeters float64) []models.Coordinates {
	if len(points) <= 2 {
		return points
	}

	merged := []models.Coordinates{points[0]}
	for i := 1; i < len(points)-1; i++ {
		if geometry.HaversineMeters(merged[len(merged)-1], points[i]) >= thresholdMeters {
			merged = append(merged, points[i])
		}
	}
	merged = append(merged, points[len(points)-1])
	return merged
}

// minimalSkeleton keeps the endpoints plus at most 8 evenly sampled
// intermediate points
func minimalSkeleton(points []models.Coordinates) []models.Coordinates {
	if len(points) <= 2 {
		return points
	}

	inner := len(points) - 2
	keep := inner
	if keep > maxSkeletonIntermediates {
		keep = maxSkeletonIntermediates
	}

	skeleton := []models.Coordinates{points[0]}
	for s := 1; s <= keep; s++ {
		idx := 1 + (s-1)*inner/keep
		skeleton = append(skeleton, points[idx])
	}
	skeleton = append(skeleton, points[len(points)-1])
	return skeleton
}
