package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"squadrat-planner/internal/gpxexport"
	"squadrat-planner/internal/models"
	"squadrat-planner/internal/routing"
)

// RouteRequest is the body of POST /api/route
type RouteRequest struct {
	Start     models.Coordinates    `json:"start"`
	Cells     []models.SelectedCell `json:"cells"`
	Profile   string                `json:"profile"`
	Roundtrip bool                  `json:"roundtrip"`
	// Format selects the response encoding: "json" (default) or "gpx".
	Format string `json:"format"`
	Name   string `json:"name"`
}

// HandleRoute handles POST /api/route
func (h *Handler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleValidationError(w, "Invalid request body")
		return
	}
	if len(req.Cells) == 0 {
		h.handleValidationError(w, "At least one cell is required")
		return
	}
	if req.Format != "" && req.Format != "json" && req.Format != "gpx" {
		h.handleValidationError(w, fmt.Sprintf("Unknown format %q", req.Format))
		return
	}

	route, err := h.Planner.PlanRoute(r.Context(), &routing.Request{
		Start:     req.Start,
		Cells:     req.Cells,
		Profile:   req.Profile,
		Roundtrip: req.Roundtrip,
	})
	if err != nil {
		h.handlePlanningError(w, err)
		return
	}

	log.Printf("[API] Route complete: cells=%d distance=%.1fkm profile=%s simplified=%v minimal=%v",
		len(req.Cells), route.DistanceKm, route.ProfileUsed, route.Simplified, route.Minimal)

	if req.Format == "gpx" {
		data, err := gpxexport.Export(route, req.Name)
		if err != nil {
			h.handleInternalError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/gpx+xml")
		w.Header().Set("Content-Disposition", `attachment; filename="route.gpx"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	h.writeJSON(w, http.StatusOK, route)
}
