package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squadrat-planner/internal/models"
	"squadrat-planner/internal/routeservice"
)

type mockFetcher struct {
	features []models.RoadFeature
	err      error
}

func (m *mockFetcher) FetchForCells(ctx context.Context, cells []models.SelectedCell, profile string) ([]models.RoadFeature, error) {
	return m.features, m.err
}

type routeCall struct {
	points  []models.Coordinates
	profile string
}

type routeResponse struct {
	geom *routeservice.RouteGeometry
	err  error
}

type mockRouteService struct {
	responses []routeResponse
	calls     []routeCall
}

func (m *mockRouteService) SubmitRoute(ctx context.Context, points []models.Coordinates, profile string) (*routeservice.RouteGeometry, error) {
	m.calls = append(m.calls, routeCall{points: points, profile: profile})
	if len(m.responses) == 0 {
		return nil, &routeservice.ServiceError{Kind: routeservice.KindTransport, Reason: "no response configured"}
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp.geom, resp.err
}

func okResponse() routeResponse {
	return routeResponse{geom: &routeservice.RouteGeometry{
		Points:     []models.RoutePoint{{Lat: 50.0, Lng: 8.0}, {Lat: 50.01, Lng: 8.01}},
		DistanceKm: 12.5,
		TimeMin:    45,
	}}
}

func coverageResponse() routeResponse {
	return routeResponse{err: &routeservice.ServiceError{Kind: routeservice.KindCoverage, Reason: "position not mapped"}}
}

func routingResponse() routeResponse {
	return routeResponse{err: &routeservice.ServiceError{Kind: routeservice.KindRouting, Reason: "no path found"}}
}

// rowCell builds the j-th cell of a single east-west row of 0.01 degree cells
// starting at (50.0, 8.0).
func rowCell(j int) models.SelectedCell {
	return models.SelectedCell{
		GridCoords: models.CellKey{I: 0, J: j},
		Bounds: models.CellBounds{
			South: 50.0, North: 50.01,
			West: 8.0 + 0.01*float64(j), East: 8.0 + 0.01*float64(j+1),
		},
	}
}

// rowRoad crosses every cell that rowCell produces for j in [0, count).
func rowRoad(count int) models.RoadFeature {
	return models.RoadFeature{
		ID:   "way/1",
		Tags: map[string]string{"highway": "residential"},
		Points: []models.Coordinates{
			{Lat: 50.005, Lng: 7.995},
			{Lat: 50.005, Lng: 8.0 + 0.01*float64(count) + 0.005},
		},
	}
}

func testRequest(cellCount int) *Request {
	cells := make([]models.SelectedCell, cellCount)
	for j := 0; j < cellCount; j++ {
		cells[j] = rowCell(j)
	}
	return &Request{
		Start: models.Coordinates{Lat: 49.99, Lng: 8.0},
		Cells: cells,
	}
}

func TestPlanRouteSuccess(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{okResponse()}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(3)}}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(3))
	require.NoError(t, err)

	assert.Equal(t, "trekking", route.ProfileUsed)
	assert.False(t, route.Simplified)
	assert.False(t, route.Minimal)
	assert.Equal(t, 12.5, route.DistanceKm)
	assert.Len(t, route.Waypoints, 3)
	assert.Empty(t, route.SkippedSquareCoords)

	require.Len(t, svc.calls, 1)
	// Start plus one waypoint per cell, one-way.
	assert.Len(t, svc.calls[0].points, 4)
	assert.Equal(t, "trekking", svc.calls[0].profile)
}

func TestPlanRouteRoundtripClosesAtStart(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{okResponse()}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(3)}}, svc)

	req := testRequest(3)
	req.Roundtrip = true

	_, err := planner.PlanRoute(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, svc.calls, 1)
	pts := svc.calls[0].points
	require.Len(t, pts, 5)
	assert.Equal(t, req.Start, pts[0])
	assert.Equal(t, req.Start, pts[len(pts)-1])
}

func TestPlanRouteOrdersByProximity(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{okResponse()}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(4)}}, svc)

	// Cells handed over east-to-west; the start sits west of the row.
	req := testRequest(4)
	req.Cells[0], req.Cells[3] = req.Cells[3], req.Cells[0]
	req.Cells[1], req.Cells[2] = req.Cells[2], req.Cells[1]
	req.Start = models.Coordinates{Lat: 50.005, Lng: 7.99}

	route, err := planner.PlanRoute(context.Background(), req)
	require.NoError(t, err)

	for i := 1; i < len(route.Waypoints); i++ {
		assert.Greater(t, route.Waypoints[i].Coords.Lng, route.Waypoints[i-1].Coords.Lng,
			"waypoints should run west to east from the start")
	}
}

func TestPlanRouteSkipsRoadlessCells(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{okResponse()}}
	planner := NewPlanner(&mockFetcher{}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(2))
	require.NoError(t, err)

	assert.Len(t, route.SkippedSquareCoords, 2)
	assert.Len(t, route.Waypoints, 2)
	require.Len(t, svc.calls, 1)
	// Only the start survives into the submitted list.
	assert.Len(t, svc.calls[0].points, 1)
}

func TestPlanRouteProfileFallback(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{routingResponse(), okResponse()}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(2)}}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(2))
	require.NoError(t, err)

	assert.Equal(t, "fastbike", route.ProfileUsed)
	assert.False(t, route.Simplified)
	require.Len(t, svc.calls, 2)
	assert.Equal(t, "trekking", svc.calls[0].profile)
	assert.Equal(t, "fastbike", svc.calls[1].profile)
}

func TestPlanRouteCoverageSkipsProfileFallback(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{coverageResponse(), okResponse()}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(3)}}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(3))
	require.NoError(t, err)

	assert.True(t, route.Simplified)
	assert.False(t, route.Minimal)
	require.Len(t, svc.calls, 2)
	// Both attempts keep the requested profile; alternates are for
	// generic failures only.
	assert.Equal(t, "trekking", svc.calls[1].profile)
	assert.LessOrEqual(t, len(svc.calls[1].points), len(svc.calls[0].points))
}

func TestPlanRouteEscalatesToMinimalSkeleton(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{
		coverageResponse(),
		coverageResponse(),
		coverageResponse(),
		coverageResponse(),
		okResponse(),
	}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(3)}}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(3))
	require.NoError(t, err)

	assert.True(t, route.Simplified)
	assert.True(t, route.Minimal)
	// Requested profile, all three merge thresholds, then the skeleton.
	require.Len(t, svc.calls, 5)
	assert.LessOrEqual(t, len(svc.calls[4].points), maxSkeletonIntermediates+2)
}

func TestPlanRouteExhausted(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{coverageResponse()}}
	planner := NewPlanner(&mockFetcher{features: []models.RoadFeature{rowRoad(2)}}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(2))
	require.Error(t, err)
	assert.Nil(t, route)

	var exhausted *ErrRoutingExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "minimal", exhausted.LastTier)

	var svcErr *routeservice.ServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestPlanRouteEmptyCells(t *testing.T) {
	planner := NewPlanner(&mockFetcher{}, &mockRouteService{})

	_, err := planner.PlanRoute(context.Background(), &Request{Start: models.Coordinates{Lat: 50, Lng: 8}})
	require.Error(t, err)

	var exhausted *ErrRoutingExhausted
	assert.ErrorAs(t, err, &exhausted)
}

func TestPlanRouteSurvivesRoadFetchFailure(t *testing.T) {
	svc := &mockRouteService{responses: []routeResponse{okResponse()}}
	planner := NewPlanner(&mockFetcher{err: fmt.Errorf("all endpoints down")}, svc)

	route, err := planner.PlanRoute(context.Background(), testRequest(2))
	require.NoError(t, err)

	// Without road data every cell degrades to its center.
	assert.Len(t, route.SkippedSquareCoords, 2)
}

func TestMergeClosePoints(t *testing.T) {
	points := []models.Coordinates{
		{Lat: 50.0, Lng: 8.0},
		{Lat: 50.001, Lng: 8.0}, // ~111m from previous
		{Lat: 50.02, Lng: 8.0},  // ~2.1km
		{Lat: 50.021, Lng: 8.0}, // ~111m
		{Lat: 50.05, Lng: 8.0},
	}

	merged := mergeClosePoints(points, 500)
	assert.Equal(t, []models.Coordinates{
		{Lat: 50.0, Lng: 8.0},
		{Lat: 50.02, Lng: 8.0},
		{Lat: 50.05, Lng: 8.0},
	}, merged)

	// Endpoints survive even when everything else merges away.
	merged = mergeClosePoints(points, 1e9)
	assert.Equal(t, []models.Coordinates{points[0], points[4]}, merged)
}

func TestMinimalSkeleton(t *testing.T) {
	points := make([]models.Coordinates, 22)
	for i := range points {
		points[i] = models.Coordinates{Lat: 50 + float64(i)*0.01, Lng: 8}
	}

	skeleton := minimalSkeleton(points)
	assert.Len(t, skeleton, maxSkeletonIntermediates+2)
	assert.Equal(t, points[0], skeleton[0])
	assert.Equal(t, points[21], skeleton[len(skeleton)-1])

	short := []models.Coordinates{{Lat: 50, Lng: 8}, {Lat: 51, Lng: 8}}
	assert.Equal(t, short, minimalSkeleton(short))
}

func TestTwoOptSequenceUncrossesWaypoints(t *testing.T) {
	planner := NewPlanner(&mockFetcher{}, &mockRouteService{})

	start := models.Coordinates{Lat: 50.0, Lng: 8.0}
	sequence := []models.Waypoint{
		{Coords: models.Coordinates{Lat: 50.0, Lng: 8.03}},
		{Coords: models.Coordinates{Lat: 50.0, Lng: 8.01}},
		{Coords: models.Coordinates{Lat: 50.0, Lng: 8.02}},
		{Coords: models.Coordinates{Lat: 50.0, Lng: 8.04}},
	}

	improved := planner.twoOptSequence(start, sequence, false)
	assert.True(t, improved)
	for i := 1; i < len(sequence); i++ {
		assert.Greater(t, sequence[i].Coords.Lng, sequence[i-1].Coords.Lng)
	}
}
