// Package tsp orders waypoints by tour length: greedy nearest-neighbor
// construction followed by 2-opt local search over geodesic distances.
package tsp

import (
	"math"

	"squadrat-planner/internal/geometry"
	"squadrat-planner/internal/models"
)

// DefaultMaxIterations bounds full 2-opt passes; a pass with no accepted move
// terminates earlier
const DefaultMaxIterations = 100

// TotalLength sums the successive pairwise geodesic distances of a route, in
// meters
func TotalLength(route []models.Coordinates) float64 {
	total := 0.0
	for i := 1; i < len(route); i++ {
		total += geometry.HaversineMeters(route[i-1], route[i])
	}
	return total
}

// NearestNeighbor builds a tour greedily: starting at start, repeatedly move
// to the closest unvisited point. The result begins with start and, when
// roundtrip is set, ends with start again.
func NearestNeighbor(start models.Coordinates, points []models.Coordinates, roundtrip bool) []models.Coordinates {
	route := make([]models.Coordinates, 0, len(points)+2)
	route = append(route, start)

	remaining := append([]models.Coordinates(nil), points...)
	current := start

	for len(remaining) > 0 {
		bestIdx := 0
		bestDist := math.Inf(1)
		for idx, p := range remaining {
			if d := geometry.HaversineMeters(current, p); d < bestDist {
				bestDist = d
				bestIdx = idx
			}
		}
		current = remaining[bestIdx]
		route = append(route, current)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	if roundtrip {
		route = append(route, start)
	}
	return route
}

// TwoOpt improves a route by reversing segments whenever the standard 2-opt
// edge exchange shortens total length. route[0] is a fixed start; when the
// route closes back on its first point the closing point is fixed too. The
// input is not modified. Terminates at a local optimum or after maxIterations
// passes (<=0 means DefaultMaxIterations).
func TwoOpt(route []models.Coordinates, maxIterations int) []models.Coordinates {
	out := append([]models.Coordinates(nil), route...)
	n := len(out)
	if n < 4 {
		return out
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	closed := samePoint(out[0], out[n-1])
	last := n - 1
	if closed {
		last = n - 2
	}

	improved := true
	for pass := 0; improved && pass < maxIterations; pass++ {
		improved = false
		for i := 1; i < last; i++ {
			for j := i + 1; j <= last; j++ {
				// Exchange edges (i-1,i) and (j,j+1) for (i-1,j) and (i,j+1)
				// by reversing the segment [i..j].
				delta := geometry.HaversineMeters(out[i-1], out[j]) - geometry.HaversineMeters(out[i-1], out[i])
				if j+1 < n {
					delta += geometry.HaversineMeters(out[i], out[j+1]) - geometry.HaversineMeters(out[j], out[j+1])
				}
				if delta < -1e-9 {
					reverse(out, i, j)
					improved = true
				}
			}
		}
	}
	return out
}

// SolveOrder runs nearest-neighbor plus 2-opt over points with a fixed start
// and returns the visiting order as indices into points
func SolveOrder(start models.Coordinates, points []models.Coordinates, roundtrip bool, maxIterations int) []int {
	if len(points) == 0 {
		return nil
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	// Nearest-neighbor over indices.
	order := make([]int, 0, len(points))
	remaining := make([]int, len(points))
	for i := range remaining {
		remaining[i] = i
	}
	current := start
	for len(remaining) > 0 {
		bestPos := 0
		bestDist := math.Inf(1)
		for pos, idx := range remaining {
			if d := geometry.HaversineMeters(current, points[idx]); d < bestDist {
				bestDist = d
				bestPos = pos
			}
		}
		order = append(order, remaining[bestPos])
		current = points[remaining[bestPos]]
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	// 2-opt on the ordered coordinates, mirroring the reversals onto the
	// index permutation.
	route := make([]models.Coordinates, 0, len(order)+2)
	route = append(route, start)
	for _, idx := range order {
		route = append(route, points[idx])
	}
	if roundtrip {
		route = append(route, start)
	}

	n := len(route)
	last := n - 1
	if roundtrip {
		last = n - 2
	}

	improved := true
	for pass := 0; improved && pass < maxIterations; pass++ {
		improved = false
		for i := 1; i < last; i++ {
			for j := i + 1; j <= last; j++ {
				delta := geometry.HaversineMeters(route[i-1], route[j]) - geometry.HaversineMeters(route[i-1], route[i])
				if j+1 < n {
					delta += geometry.HaversineMeters(route[i], route[j+1]) - geometry.HaversineMeters(route[j], route[j+1])
				}
				if delta < -1e-9 {
					reverse(route, i, j)
					// route[1:] maps to order with an offset of one
					reverseInts(order, i-1, j-1)
					improved = true
				}
			}
		}
	}

	return order
}

func reverse(points []models.Coordinates, i, j int) {
	for i < j {
		points[i], points[j] = points[j], points[i]
		i++
		j--
	}
}

func reverseInts(ints []int, i, j int) {
	for i < j {
		ints[i], ints[j] = ints[j], ints[i]
		i++
		j--
	}
}

func samePoint(a, b models.Coordinates) bool {
	return models.RoundCoordinate(a.Lat) == models.RoundCoordinate(b.Lat) &&
		models.RoundCoordinate(a.Lng) == models.RoundCoordinate(b.Lng)
}
