// Package handlers maps the /v1 HTTP surface onto the risk services. Each
// handler declares the narrow service interface it needs and registers its
// own routes.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"resilience/internal/core"
	"resilience/internal/types"
)

const (
	snapshotPageDefaultLimit = 20
	snapshotPageMaxLimit     = 100
)

// RiskDataService is implemented by ingest.Service.
type RiskDataService interface {
	FetchForProject(ctx context.Context, projectID string, override *types.Location) (*types.EnvironmentalSnapshot, error)
	LatestSnapshot(ctx context.Context, projectID string) (*types.EnvironmentalSnapshot, error)
	History(ctx context.Context, projectID string, page types.PageRequest) ([]*types.EnvironmentalSnapshot, int, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// RiskDataHandler serves snapshot ingestion and reads.
type RiskDataHandler struct {
	service   RiskDataService
	validator *core.Validator
}

// NewRiskDataHandler creates a RiskDataHandler.
func NewRiskDataHandler(svc RiskDataService, val *core.Validator) *RiskDataHandler {
	return &RiskDataHandler{service: svc, validator: val}
}

// RegisterRoutes mounts the handler under /risk-data.
func (h *RiskDataHandler) RegisterRoutes(r chi.Router) {
	r.Route("/risk-data", func(r chi.Router) {
		r.Post("/fetch/{projectID}", h.HandleFetch)
		r.Get("/{id}/latest", h.HandleLatest)
		r.Get("/{id}/history", h.HandleHistory)
		r.Delete("/{id}", h.HandleDelete)
	})
}

// fetchRequest is the optional body of a fetch. The coordinates are only
// used when the project has no stored location.
type fetchRequest struct {
	Lat *float64 `json:"lat" validate:"required_with=Lng,omitempty,latitude"`
	Lng *float64 `json:"lng" validate:"required_with=Lat,omitempty,longitude"`
}

// HandleFetch handles POST /v1/risk-data/fetch/{projectID}.
func (h *RiskDataHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}

	var req fetchRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	var override *types.Location
	if req.Lat != nil && req.Lng != nil {
		override = &types.Location{Lat: *req.Lat, Lng: *req.Lng}
	}

	snap, err := h.service.FetchForProject(r.Context(), projectID, override)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusCreated, snap)
}

// HandleLatest handles GET /v1/risk-data/{projectID}/latest.
func (h *RiskDataHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}

	snap, err := h.service.LatestSnapshot(r.Context(), projectID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, snap)
}

// HandleHistory handles GET /v1/risk-data/{projectID}/history?page&limit.
func (h *RiskDataHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}
	page, err := core.QueryPage(r, snapshotPageDefaultLimit, snapshotPageMaxLimit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	list, total, err := h.service.History(r.Context(), projectID, page)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Page(w, r, list, page, total)
}

// HandleDelete handles DELETE /v1/risk-data/{snapshotID}.
func (h *RiskDataHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(id, types.ErrCodeValidationInvalidID); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.service.DeleteSnapshot(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
