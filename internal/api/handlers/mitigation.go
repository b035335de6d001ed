package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"resilience/internal/core"
	"resilience/internal/types"
)

// MitigationService is implemented by mitigation.Service.
type MitigationService interface {
	GenerateForProject(ctx context.Context, projectID, author string) (*types.MitigationPlan, error)
	Latest(ctx context.Context, projectID string) (*types.MitigationPlan, error)
	History(ctx context.Context, projectID string, limit int) ([]*types.MitigationPlan, error)
	Get(ctx context.Context, id string) (*types.MitigationPlan, error)
	SetRecommendationStatus(ctx context.Context, planID string, index int, status types.RecommendationStatus) (*types.MitigationPlan, error)
	Delete(ctx context.Context, id string) error
}

// MitigationHandler serves mitigation plan endpoints.
type MitigationHandler struct {
	service   MitigationService
	validator *core.Validator
}

// NewMitigationHandler creates a MitigationHandler.
func NewMitigationHandler(svc MitigationService, val *core.Validator) *MitigationHandler {
	return &MitigationHandler{service: svc, validator: val}
}

// RegisterRoutes mounts the handler under /mitigation.
func (h *MitigationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/mitigation", func(r chi.Router) {
		r.Post("/generate/{projectID}", h.HandleGenerate)
		r.Get("/{id}/latest", h.HandleLatest)
		r.Get("/{id}/history", h.HandleHistory)
		r.Get("/{id}", h.HandleGet)
		r.Patch("/{id}/recommendations/{index}", h.HandleSetStatus)
		r.Delete("/{id}", h.HandleDelete)
	})
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING DONE"`
}

// HandleGenerate handles POST /v1/mitigation/generate/{projectID}. The plan
// is derived from the project's latest assessment.
func (h *MitigationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.service.GenerateForProject(r.Context(), projectID, types.GetAuthor(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusCreated, plan)
}

// HandleLatest handles GET /v1/mitigation/{projectID}/latest.
func (h *MitigationHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.service.Latest(r.Context(), projectID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, plan)
}

// HandleHistory handles GET /v1/mitigation/{projectID}/history?limit.
func (h *MitigationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}
	limit, err := core.QueryLimit(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plans, err := h.service.History(r.Context(), projectID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, plans)
}

// HandleGet handles GET /v1/mitigation/{id}.
func (h *MitigationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(id, types.ErrCodeValidationInvalidID); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.service.Get(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, plan)
}

// HandleSetStatus handles PATCH /v1/mitigation/{id}/recommendations/{index}.
func (h *MitigationHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(id, types.ErrCodeValidationInvalidID); err != nil {
		core.Error(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidID,
			"recommendation index must be an integer", nil,
			map[string]any{"index": chi.URLParam(r, "index")}))
		return
	}

	var req setStatusRequest
	if err := core.DecodeJSON(w, r, &req, false); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.service.SetRecommendationStatus(r.Context(), id, index, types.RecommendationStatus(req.Status))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, plan)
}

// HandleDelete handles DELETE /v1/mitigation/{id}.
func (h *MitigationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(id, types.ErrCodeValidationInvalidID); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
