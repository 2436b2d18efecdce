// Package optimizer selects which unexplored cells to visit next. It is a
// state-free function of the grid parameters and the visited set: edge
// completion analysis, connected-component hole detection, multi-factor
// scoring and greedy distance-aware selection.
package optimizer

import (
	"fmt"
	"log"
	"math"
	"sort"

	"squadrat-planner/internal/grid"
	"squadrat-planner/internal/models"
)

// SearchRadius is the number of layers around the base square considered for
// candidates and hole detection
const SearchRadius = 5

// Score tiers and bonuses
const (
	baseScore             = 100.0
	adjacencyBonus        = 25.0
	holeCompletionBonus   = 1500.0
	chainHoleBonus        = 1500.0
	distancePenaltyFactor = 100.0
	directionPenalty      = -1000000.0
)

// Request is one optimization call. Visited is treated as immutable for the
// duration of the call.
type Request struct {
	Params      *models.GridParams
	Visited     models.VisitedSet
	TargetCount int
	// Directions restricts candidates to a subset of N/S/E/W; empty means no
	// restriction. Non-matching candidates are penalized, not removed.
	Directions []models.Direction
	Mode       models.OptimizeMode
	// MaxHoleSize caps which holes receive fill bonuses; 0 or negative means
	// no cap. Cells of oversized holes stay valid candidates.
	MaxHoleSize int
}

// Result is the ranked selection plus the analysis it was based on
type Result struct {
	Selected  []models.SelectedCell `json:"selected"`
	Edges     []models.EdgeInfo     `json:"edges"`
	HoleCount int                   `json:"hole_count"`
}

// ErrInvalidRequest is returned for unusable optimizer input
type ErrInvalidRequest struct {
	Reason string
}

func (e *ErrInvalidRequest) Error() string {
	return fmt.Sprintf("invalid optimizer request: %s", e.Reason)
}

type candidate struct {
	key        models.CellKey
	directions []models.Direction
	layer      int
	holeID     int
	holeSize   int
	breakdown  models.ScoreBreakdown
	score      float64
}

type hole struct {
	id       int
	cells    []models.CellKey
	avgLayer float64
}

// Optimize runs the full pipeline and returns the selected cells in visiting
// priority order
func Optimize(req Request) (*Result, error) {
	if req.Params == nil {
		return nil, &ErrInvalidRequest{Reason: "grid parameters are required"}
	}
	if req.TargetCount <= 0 {
		return nil, &ErrInvalidRequest{Reason: "target count must be positive"}
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeBalanced
	}

	base := req.Params.BaseSquare
	edges := analyzeEdges(base, req.Visited)
	holes, holeIndex := detectHoles(base, req.Visited)

	candidates := collectCandidates(base, req.Visited, holes, holeIndex)
	scoreCandidates(candidates, req, mode, edges, holes)

	// Deterministic ranking: score descending, then grid coords.
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		if candidates[a].key.I != candidates[b].key.I {
			return candidates[a].key.I < candidates[b].key.I
		}
		return candidates[a].key.J < candidates[b].key.J
	})

	selected := selectGreedy(candidates, req.TargetCount)

	result := &Result{
		Selected:  make([]models.SelectedCell, 0, len(selected)),
		Edges:     edges,
		HoleCount: len(holes),
	}
	for order, c := range selected {
		result.Selected = append(result.Selected, models.SelectedCell{
			GridCoords:     c.key,
			Bounds:         grid.CellBounds(req.Params, c.key.I, c.key.J),
			Score:          c.score,
			Breakdown:      c.breakdown,
			LayerDistance:  c.layer,
			SelectionOrder: order,
			Directions:     c.directions,
			HoleID:         c.holeID,
			HoleSize:       c.holeSize,
		})
	}

	log.Printf("[OPTIMIZE] Selection complete: mode=%s candidates=%d holes=%d selected=%d",
		mode, len(candidates), len(holes), len(result.Selected))
	return result, nil
}

// analyzeEdges computes the visited fraction of each border row/column
// immediately outside the base square. An edge can expand only when it is
// fully visited.
func analyzeEdges(base models.CellRect, visited models.VisitedSet) []models.EdgeInfo {
	width := base.MaxJ - base.MinJ + 1
	height := base.MaxI - base.MinI + 1

	countRow := func(i int) int {
		n := 0
		for j := base.MinJ; j <= base.MaxJ; j++ {
			if visited.Has(models.CellKey{I: i, J: j}) {
				n++
			}
		}
		return n
	}
	countCol := func(j int) int {
		n := 0
		for i := base.MinI; i <= base.MaxI; i++ {
			if visited.Has(models.CellKey{I: i, J: j}) {
				n++
			}
		}
		return n
	}

	edges := []models.EdgeInfo{
		{Direction: models.North, CompletionPct: 100 * float64(countRow(base.MaxI+1)) / float64(width)},
		{Direction: models.South, CompletionPct: 100 * float64(countRow(base.MinI-1)) / float64(width)},
		{Direction: models.East, CompletionPct: 100 * float64(countCol(base.MaxJ+1)) / float64(height)},
		{Direction: models.West, CompletionPct: 100 * float64(countCol(base.MinJ-1)) / float64(height)},
	}
	for i := range edges {
		edges[i].CanExpand = edges[i].CompletionPct == 100
	}
	return edges
}

// detectHoles flood-fills the unvisited cells within the search bounds into
// maximal 4-connected components. Every unvisited cell in bounds belongs to
// exactly one hole.
func detectHoles(base models.CellRect, visited models.VisitedSet) ([]hole, map[models.CellKey]int) {
	scan := base.Expand(SearchRadius)
	seen := make(map[models.CellKey]bool)
	index := make(map[models.CellKey]int)
	var holes []hole

	neighbors := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	for i := scan.MinI; i <= scan.MaxI; i++ {
		for j := scan.MinJ; j <= scan.MaxJ; j++ {
			start := models.CellKey{I: i, J: j}
			if visited.Has(start) || seen[start] {
				continue
			}

			id := len(holes) + 1
			queue := []models.CellKey{start}
			seen[start] = true
			var cells []models.CellKey
			layerSum := 0

			for qi := 0; qi < len(queue); qi++ {
				cur := queue[qi]
				cells = append(cells, cur)
				index[cur] = id
				layerSum += layerDistance(base, cur)

				for _, d := range neighbors {
					next := models.CellKey{I: cur.I + d[0], J: cur.J + d[1]}
					if seen[next] || visited.Has(next) || !scan.Contains(next) {
						continue
					}
					seen[next] = true
					queue = append(queue, next)
				}
			}

			holes = append(holes, hole{
				id:       id,
				cells:    cells,
				avgLayer: float64(layerSum) / float64(len(cells)),
			})
		}
	}

	return holes, index
}

// layerDistance is the Manhattan distance from a cell to the nearest base
// square border, counted so that border-adjacent cells are layer 0. Cells
// inside the base square are layer 0.
func layerDistance(base models.CellRect, k models.CellKey) int {
	di := 0
	if k.I < base.MinI {
		di = base.MinI - k.I
	} else if k.I > base.MaxI {
		di = k.I - base.MaxI
	}
	dj := 0
	if k.J < base.MinJ {
		dj = base.MinJ - k.J
	} else if k.J > base.MaxJ {
		dj = k.J - base.MaxJ
	}

	raw := di + dj
	if raw <= 0 {
		return 0
	}
	return raw - 1
}

// cellDirections tags the cardinal direction(s) a cell lies in relative to
// the base square
func cellDirections(base models.CellRect, k models.CellKey) []models.Direction {
	var dirs []models.Direction
	if k.I > base.MaxI {
		dirs = append(dirs, models.North)
	}
	if k.I < base.MinI {
		dirs = append(dirs, models.South)
	}
	if k.J > base.MaxJ {
		dirs = append(dirs, models.East)
	}
	if k.J < base.MinJ {
		dirs = append(dirs, models.West)
	}
	return dirs
}

// collectCandidates gathers every unvisited cell strictly outside the base
// square within the search radius
func collectCandidates(base models.CellRect, visited models.VisitedSet, holes []hole, holeIndex map[models.CellKey]int) []*candidate {
	scan := base.Expand(SearchRadius)
	var out []*candidate

	holeSizes := make(map[int]int, len(holes))
	for _, h := range holes {
		holeSizes[h.id] = len(h.cells)
	}

	for i := scan.MinI; i <= scan.MaxI; i++ {
		for j := scan.MinJ; j <= scan.MaxJ; j++ {
			k := models.CellKey{I: i, J: j}
			if base.Contains(k) || visited.Has(k) {
				continue
			}
			id := holeIndex[k]
			out = append(out, &candidate{
				key:        k,
				directions: cellDirections(base, k),
				layer:      layerDistance(base, k),
				holeID:     id,
				holeSize:   holeSizes[id],
			})
		}
	}
	return out
}

func layerScore(layer int) float64 {
	switch {
	case layer == 0:
		return 10000
	case layer == 1:
		return 5000
	case layer == 2:
		return 2000
	case layer == 3:
		return 500
	case layer == 4:
		return -2000
	default:
		return -10000
	}
}

// holeMultiplier degrades the hole-fill bonus with layer distance
func holeMultiplier(layer int) float64 {
	switch {
	case layer >= 5:
		return 200
	case layer >= 3:
		return 400
	default:
		return 800
	}
}

func modeFactors(mode models.OptimizeMode) (edgeFactor, holeFactor float64) {
	switch mode {
	case models.ModeEdge:
		return 3, 0.3
	case models.ModeHoles:
		return 0.3, 2
	default:
		return 1, 1
	}
}

func scoreCandidates(candidates []*candidate, req Request, mode models.OptimizeMode, edges []models.EdgeInfo, holes []hole) {
	edgeFactor, holeFactor := modeFactors(mode)

	edgePct := make(map[models.Direction]float64, len(edges))
	for _, e := range edges {
		edgePct[e.Direction] = e.CompletionPct
	}

	neighbors := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	for _, c := range candidates {
		b := models.ScoreBreakdown{Base: baseScore}
		b.Layer = layerScore(c.layer)

		// Hole-fill bonus, only for holes within the size cap.
		if c.holeID > 0 && (req.MaxHoleSize <= 0 || c.holeSize <= req.MaxHoleSize) {
			holeTerm := float64(c.holeSize) * holeMultiplier(c.layer)
			if c.holeSize == 1 {
				// Selecting this cell leaves the hole fully visited.
				holeTerm += holeCompletionBonus
			}
			b.Hole = holeTerm * holeFactor
		}

		// Edge-completion bonus for the best matching direction.
		maxPct := 0.0
		for _, d := range c.directions {
			if edgePct[d] > maxPct {
				maxPct = edgePct[d]
			}
		}
		b.Edge = math.Floor(maxPct*5) * edgeFactor

		adjacent := 0
		for _, d := range neighbors {
			if req.Visited.Has(models.CellKey{I: c.key.I + d[0], J: c.key.J + d[1]}) {
				adjacent++
			}
		}
		b.Adjacency = float64(adjacent) * adjacencyBonus

		// Direction restriction degrades rather than excludes, so a caller
		// asking for an impossible direction still gets an answer.
		if len(req.Directions) > 0 && !matchesAny(c.directions, req.Directions) {
			b.Direction = directionPenalty
		}

		c.breakdown = b
		c.score = b.Total()
	}
}

func matchesAny(have, want []models.Direction) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func manhattan(a, b models.CellKey) int {
	di := a.I - b.I
	if di < 0 {
		di = -di
	}
	dj := a.J - b.J
	if dj < 0 {
		dj = -dj
	}
	return di + dj
}

// selectGreedy picks the highest-scoring candidate first, then repeatedly the
// candidate maximizing score minus a distance penalty to the previous pick,
// with a bonus for continuing a hole already being filled. Candidates arrive
// sorted by score descending.
func selectGreedy(candidates []*candidate, targetCount int) []*candidate {
	if len(candidates) == 0 {
		return nil
	}

	remaining := make([]*candidate, len(candidates))
	copy(remaining, candidates)

	var selected []*candidate
	touchedHoles := make(map[int]bool)

	pick := func(idx int) {
		c := remaining[idx]
		selected = append(selected, c)
		if c.holeID > 0 {
			touchedHoles[c.holeID] = true
		}
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	pick(0)

	for len(selected) < targetCount && len(remaining) > 0 {
		last := selected[len(selected)-1].key
		bestIdx := 0
		bestValue := math.Inf(-1)

		for idx, c := range remaining {
			value := c.score - distancePenaltyFactor*float64(manhattan(last, c.key))
			if c.holeID > 0 && touchedHoles[c.holeID] {
				value += chainHoleBonus
			}
			if value > bestValue {
				bestValue = value
				bestIdx = idx
			}
		}

		pick(bestIdx)
	}

	return selected
}
