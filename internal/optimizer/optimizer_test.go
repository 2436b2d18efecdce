package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squadrat-planner/internal/grid"
	"squadrat-planner/internal/models"
)

func testParams(t *testing.T, size int) *models.GridParams {
	t.Helper()
	ring := models.Ring{
		{Lat: 50.0, Lng: 8.0},
		{Lat: 50.0, Lng: 9.0},
		{Lat: 51.0, Lng: 9.0},
		{Lat: 51.0, Lng: 8.0},
	}
	p, err := grid.DeriveParams(ring, size)
	require.NoError(t, err)
	return p
}

// fullyVisited marks every cell of the base square expanded by SearchRadius,
// minus the given exceptions
func fullyVisited(base models.CellRect, except ...models.CellKey) models.VisitedSet {
	visited := make(models.VisitedSet)
	scan := base.Expand(SearchRadius)
	for i := scan.MinI; i <= scan.MaxI; i++ {
		for j := scan.MinJ; j <= scan.MaxJ; j++ {
			visited.Add(models.CellKey{I: i, J: j})
		}
	}
	for _, k := range except {
		delete(visited, k)
	}
	return visited
}

func TestOptimizeSingleNorthGap(t *testing.T) {
	p := testParams(t, 16)
	gap := models.CellKey{I: 16, J: 5}

	result, err := Optimize(Request{
		Params:      p,
		Visited:     fullyVisited(p.BaseSquare, gap),
		TargetCount: 1,
		Mode:        models.ModeHoles,
		MaxHoleSize: 3,
	})

	require.NoError(t, err)
	require.Len(t, result.Selected, 1)
	assert.Equal(t, gap, result.Selected[0].GridCoords)
	assert.Equal(t, 0, result.Selected[0].LayerDistance)
	assert.Contains(t, result.Selected[0].Directions, models.North)
	assert.Positive(t, result.Selected[0].Breakdown.Hole, "one-cell hole gets completion bonus")
}

func TestOptimizeNeverReturnsVisitedCells(t *testing.T) {
	p := testParams(t, 8)

	// Only the base square visited; the whole buffer ring is open.
	visited := make(models.VisitedSet)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			visited.Add(models.CellKey{I: i, J: j})
		}
	}

	result, err := Optimize(Request{
		Params:      p,
		Visited:     visited,
		TargetCount: 10,
		Mode:        models.ModeBalanced,
	})
	require.NoError(t, err)
	require.Len(t, result.Selected, 10)

	for _, s := range result.Selected {
		assert.False(t, visited.Has(s.GridCoords), "selected visited cell %v", s.GridCoords)
		assert.False(t, p.BaseSquare.Contains(s.GridCoords), "selected cell inside base square")
	}
}

func TestDetectHolesPartition(t *testing.T) {
	p := testParams(t, 8)

	visited := make(models.VisitedSet)
	scan := p.BaseSquare.Expand(SearchRadius)
	// Checkerboard-ish pattern leaves plenty of unvisited structure
	for i := scan.MinI; i <= scan.MaxI; i++ {
		for j := scan.MinJ; j <= scan.MaxJ; j++ {
			if (i+3*j)%4 != 0 {
				visited.Add(models.CellKey{I: i, J: j})
			}
		}
	}

	holes, index := detectHoles(p.BaseSquare, visited)

	// Every unvisited cell in bounds belongs to exactly one hole
	unvisitedCount := 0
	for i := scan.MinI; i <= scan.MaxI; i++ {
		for j := scan.MinJ; j <= scan.MaxJ; j++ {
			k := models.CellKey{I: i, J: j}
			if visited.Has(k) {
				assert.NotContains(t, index, k)
				continue
			}
			unvisitedCount++
			id, ok := index[k]
			require.True(t, ok, "unvisited cell %v not assigned to a hole", k)
			assert.Greater(t, id, 0)
		}
	}

	// Holes are pairwise disjoint and cover all unvisited cells
	total := 0
	for _, h := range holes {
		total += len(h.cells)
		for _, c := range h.cells {
			assert.Equal(t, h.id, index[c])
		}
	}
	assert.Equal(t, unvisitedCount, total)
}

func TestDetectHolesSeparateComponents(t *testing.T) {
	p := testParams(t, 8)
	a := models.CellKey{I: 2, J: 2}
	b := models.CellKey{I: 5, J: 6}
	visited := fullyVisited(p.BaseSquare, a, b)

	holes, index := detectHoles(p.BaseSquare, visited)
	require.Len(t, holes, 2)
	assert.NotEqual(t, index[a], index[b])
}

func TestDetectHolesDiagonalIsNotConnected(t *testing.T) {
	p := testParams(t, 8)
	a := models.CellKey{I: 2, J: 2}
	b := models.CellKey{I: 3, J: 3}
	visited := fullyVisited(p.BaseSquare, a, b)

	holes, _ := detectHoles(p.BaseSquare, visited)
	assert.Len(t, holes, 2, "diagonal neighbors are separate 4-connected components")
}

func TestLayerDistance(t *testing.T) {
	base := models.CellRect{MinI: 0, MaxI: 15, MinJ: 0, MaxJ: 15}

	assert.Equal(t, 0, layerDistance(base, models.CellKey{I: 5, J: 5}), "inside")
	assert.Equal(t, 0, layerDistance(base, models.CellKey{I: 16, J: 5}), "border-adjacent")
	assert.Equal(t, 1, layerDistance(base, models.CellKey{I: 17, J: 5}))
	assert.Equal(t, 4, layerDistance(base, models.CellKey{I: 20, J: 5}))
	assert.Equal(t, 1, layerDistance(base, models.CellKey{I: 16, J: 16}), "corner cell")
	assert.Equal(t, 0, layerDistance(base, models.CellKey{I: -1, J: 0}), "south border-adjacent")
}

func TestAnalyzeEdges(t *testing.T) {
	p := testParams(t, 4)

	visited := make(models.VisitedSet)
	// Full north row outside the base square
	for j := 0; j < 4; j++ {
		visited.Add(models.CellKey{I: 4, J: j})
	}
	// Half the east column
	visited.Add(models.CellKey{I: 0, J: 4})
	visited.Add(models.CellKey{I: 1, J: 4})

	edges := analyzeEdges(p.BaseSquare, visited)
	byDir := make(map[models.Direction]models.EdgeInfo)
	for _, e := range edges {
		byDir[e.Direction] = e
	}

	assert.True(t, byDir[models.North].CanExpand)
	assert.Equal(t, 100.0, byDir[models.North].CompletionPct)
	assert.False(t, byDir[models.East].CanExpand)
	assert.Equal(t, 50.0, byDir[models.East].CompletionPct)
	assert.False(t, byDir[models.South].CanExpand)
	assert.Equal(t, 0.0, byDir[models.South].CompletionPct)
}

func TestDirectionFilterPenalizesButKeeps(t *testing.T) {
	p := testParams(t, 8)
	north := models.CellKey{I: 8, J: 3}
	south := models.CellKey{I: -1, J: 3}
	visited := fullyVisited(p.BaseSquare, north, south)

	result, err := Optimize(Request{
		Params:      p,
		Visited:     visited,
		TargetCount: 2,
		Directions:  []models.Direction{models.North},
		Mode:        models.ModeBalanced,
	})
	require.NoError(t, err)
	require.Len(t, result.Selected, 2)

	// The matching candidate wins; the non-matching one survives with the
	// penalty applied.
	assert.Equal(t, north, result.Selected[0].GridCoords)
	assert.Equal(t, south, result.Selected[1].GridCoords)
	assert.Equal(t, directionPenalty, result.Selected[1].Breakdown.Direction)
	assert.Equal(t, 0.0, result.Selected[0].Breakdown.Direction)
}

func TestModeMultipliers(t *testing.T) {
	p := testParams(t, 8)
	gap := models.CellKey{I: 8, J: 3}
	visited := fullyVisited(p.BaseSquare, gap)

	score := func(mode models.OptimizeMode) models.ScoreBreakdown {
		result, err := Optimize(Request{
			Params:      p,
			Visited:     visited,
			TargetCount: 1,
			Mode:        mode,
			MaxHoleSize: 5,
		})
		require.NoError(t, err)
		require.Len(t, result.Selected, 1)
		return result.Selected[0].Breakdown
	}

	balanced := score(models.ModeBalanced)
	edge := score(models.ModeEdge)
	holes := score(models.ModeHoles)

	assert.InDelta(t, balanced.Edge*3, edge.Edge, 1e-9)
	assert.InDelta(t, balanced.Hole*0.3, edge.Hole, 1e-9)
	assert.InDelta(t, balanced.Edge*0.3, holes.Edge, 1e-9)
	assert.InDelta(t, balanced.Hole*2, holes.Hole, 1e-9)
}

func TestMaxHoleSizeDropsBonusNotCandidate(t *testing.T) {
	p := testParams(t, 8)
	// A 3-cell hole north of the border
	gaps := []models.CellKey{{I: 8, J: 2}, {I: 8, J: 3}, {I: 8, J: 4}}
	visited := fullyVisited(p.BaseSquare, gaps...)

	result, err := Optimize(Request{
		Params:      p,
		Visited:     visited,
		TargetCount: 3,
		Mode:        models.ModeBalanced,
		MaxHoleSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Selected, 3, "oversized hole cells remain candidates")
	for _, s := range result.Selected {
		assert.Equal(t, 0.0, s.Breakdown.Hole, "no hole bonus past the size cap")
	}
}

func TestGreedySelectionPrefersNearbyAndChainsHoles(t *testing.T) {
	p := testParams(t, 8)
	// Two adjacent gaps forming one hole, plus a lone distant gap
	near1 := models.CellKey{I: 8, J: 2}
	near2 := models.CellKey{I: 8, J: 3}
	far := models.CellKey{I: -2, J: 7}
	visited := fullyVisited(p.BaseSquare, near1, near2, far)

	result, err := Optimize(Request{
		Params:      p,
		Visited:     visited,
		TargetCount: 3,
		Mode:        models.ModeBalanced,
		MaxHoleSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, result.Selected, 3)

	// The second pick continues the hole next to the first pick
	first := result.Selected[0].GridCoords
	second := result.Selected[1].GridCoords
	assert.Contains(t, []models.CellKey{near1, near2}, first)
	assert.Contains(t, []models.CellKey{near1, near2}, second)
	assert.Equal(t, 1, manhattan(first, second))
	assert.Equal(t, far, result.Selected[2].GridCoords)
	for i, s := range result.Selected {
		assert.Equal(t, i, s.SelectionOrder)
	}
}

func TestOptimizeInvalidRequest(t *testing.T) {
	var reqErr *ErrInvalidRequest

	_, err := Optimize(Request{Params: nil, TargetCount: 1})
	require.Error(t, err)
	assert.ErrorAs(t, err, &reqErr)

	_, err = Optimize(Request{Params: testParams(t, 4), TargetCount: 0})
	require.Error(t, err)
	assert.ErrorAs(t, err, &reqErr)
}

func TestOptimizeExhaustsCandidates(t *testing.T) {
	p := testParams(t, 8)
	gap := models.CellKey{I: 8, J: 1}
	visited := fullyVisited(p.BaseSquare, gap)

	result, err := Optimize(Request{
		Params:      p,
		Visited:     visited,
		TargetCount: 5,
		Mode:        models.ModeBalanced,
	})
	require.NoError(t, err)
	assert.Len(t, result.Selected, 1, "fewer candidates than target count")
}
