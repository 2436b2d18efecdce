package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"squadrat-planner/internal/geomio"
	"squadrat-planner/internal/grid"
	"squadrat-planner/internal/models"
	"squadrat-planner/internal/optimizer"
)

const (
	defaultGridSize    = 16
	defaultTargetCount = 10
)

// OptimizeRequest is the body of POST /api/optimize. Regions carries the
// rider's covered area as GeoJSON; the reference region anchors the grid.
type OptimizeRequest struct {
	Regions      json.RawMessage     `json:"regions"`
	GridSize     int                 `json:"grid_size"`
	BufferRadius int                 `json:"buffer_radius"`
	TargetCount  int                 `json:"target_count"`
	Mode         models.OptimizeMode `json:"mode"`
	Directions   []models.Direction  `json:"directions"`
	MaxHoleSize  int                 `json:"max_hole_size"`
}

// OptimizeResponse is the ranked selection plus the grid it was computed on
type OptimizeResponse struct {
	Grid         *models.GridParams    `json:"grid"`
	VisitedCount int                   `json:"visited_count"`
	Selected     []models.SelectedCell `json:"selected"`
	Edges        []models.EdgeInfo     `json:"edges"`
	HoleCount    int                   `json:"hole_count"`
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleValidationError(w, "Invalid request body")
		return
	}
	if len(req.Regions) == 0 {
		h.handleValidationError(w, "Regions are required")
		return
	}

	gridSize := req.GridSize
	if gridSize == 0 {
		gridSize = defaultGridSize
	}
	targetCount := req.TargetCount
	if targetCount == 0 {
		targetCount = defaultTargetCount
	}
	bufferRadius := req.BufferRadius
	if bufferRadius <= 0 {
		bufferRadius = optimizer.SearchRadius
	}

	regions, err := geomio.ParseRegions(req.Regions)
	if err != nil {
		h.handlePlanningError(w, err)
		return
	}

	reference, err := geomio.ReferenceRing(regions)
	if err != nil {
		h.handlePlanningError(w, err)
		return
	}

	params, err := grid.DeriveParams(reference, gridSize)
	if err != nil {
		h.handlePlanningError(w, err)
		return
	}

	visited := grid.ScanVisited(geomio.Polygons(regions), params, bufferRadius)

	result, err := optimizer.Optimize(optimizer.Request{
		Params:      params,
		Visited:     visited,
		TargetCount: targetCount,
		Directions:  req.Directions,
		Mode:        req.Mode,
		MaxHoleSize: req.MaxHoleSize,
	})
	if err != nil {
		h.handlePlanningError(w, err)
		return
	}

	log.Printf("[API] Optimize complete: regions=%d visited=%d selected=%d holes=%d",
		len(regions), len(visited), len(result.Selected), result.HoleCount)

	h.writeJSON(w, http.StatusOK, OptimizeResponse{
		Grid:         params,
		VisitedCount: len(visited),
		Selected:     result.Selected,
		Edges:        result.Edges,
		HoleCount:    result.HoleCount,
	})
}
