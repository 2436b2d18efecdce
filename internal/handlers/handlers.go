// Package handlers implements the JSON API surface of the planner.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"squadrat-planner/internal/geometry"
	"squadrat-planner/internal/geomio"
	"squadrat-planner/internal/models"
	"squadrat-planner/internal/optimizer"
	"squadrat-planner/internal/roads"
	"squadrat-planner/internal/routing"
)

// RoutePlanner is the planning pipeline behind POST /api/route
type RoutePlanner interface {
	PlanRoute(ctx context.Context, req *routing.Request) (*models.Route, error)
}

// Handler provides common handler utilities and dependencies
type Handler struct {
	Planner RoutePlanner
	Version string
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handlePlanningError maps the domain error taxonomy onto HTTP statuses
func (h *Handler) handlePlanningError(w http.ResponseWriter, err error) {
	var geomErr *geometry.ErrInvalidGeometry
	if errors.As(err, &geomErr) {
		h.writeError(w, http.StatusBadRequest, "INVALID_GEOMETRY", geomErr.Reason, nil)
		return
	}

	var refErr *geomio.ErrNoReferenceRegion
	if errors.As(err, &refErr) {
		h.writeError(w, http.StatusBadRequest, "NO_REFERENCE_REGION", refErr.Reason, nil)
		return
	}

	var reqErr *optimizer.ErrInvalidRequest
	if errors.As(err, &reqErr) {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", reqErr.Reason, nil)
		return
	}

	var fetchErr *roads.ErrRoadFetchFailed
	if errors.As(err, &fetchErr) {
		h.writeError(w, http.StatusBadGateway, "ROAD_FETCH_FAILED", fetchErr.Reason, nil)
		return
	}

	var exhausted *routing.ErrRoutingExhausted
	if errors.As(err, &exhausted) {
		h.writeError(w, http.StatusUnprocessableEntity, "ROUTING_FAILED", exhausted.Error(), map[string]interface{}{
			"last_tier": exhausted.LastTier,
		})
		return
	}

	h.handleInternalError(w, err)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

// HandleHealthCheck handles GET /api/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	version := h.Version
	if version == "" {
		version = "dev"
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version,
	})
}
