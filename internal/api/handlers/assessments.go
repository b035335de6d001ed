package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"resilience/internal/assessment"
	"resilience/internal/core"
	"resilience/internal/types"
)

// AssessmentService is implemented by assessment.Service.
type AssessmentService interface {
	RunForProject(ctx context.Context, projectID string) (*assessment.RunResult, error)
	GetLatest(ctx context.Context, projectID string) (*types.RiskAssessment, error)
	GetHistory(ctx context.Context, projectID string, limit int) ([]*types.RiskAssessment, error)
	GetByID(ctx context.Context, id string) (*types.RiskAssessment, error)
	Update(ctx context.Context, id string, in assessment.UpdateInput) (*types.RiskAssessment, error)
	Delete(ctx context.Context, id string) error
}

// AssessmentHandler serves the risk assessment endpoints.
type AssessmentHandler struct {
	service   AssessmentService
	validator *core.Validator
}

// NewAssessmentHandler creates an AssessmentHandler.
func NewAssessmentHandler(svc AssessmentService, val *core.Validator) *AssessmentHandler {
	return &AssessmentHandler{service: svc, validator: val}
}

// RegisterRoutes mounts the handler under /assessments. {id} is a project ID
// on the latest and history routes and an assessment ID elsewhere.
func (h *AssessmentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/assessments", func(r chi.Router) {
		r.Post("/run/{projectID}", h.HandleRun)
		r.Get("/{id}/latest", h.HandleLatest)
		r.Get("/{id}/history", h.HandleHistory)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}

type updateAssessmentRequest struct {
	WeatherScore    *int `json:"weather_score" validate:"omitempty,min=0,max=100"`
	FloodScore      *int `json:"flood_score" validate:"omitempty,min=0,max=100"`
	EarthquakeScore *int `json:"earthquake_score" validate:"omitempty,min=0,max=100"`
}

// HandleRun handles POST /v1/assessments/run/{projectID}.
func (h *AssessmentHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}

	res, err := h.service.RunForProject(r.Context(), projectID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusCreated, res)
}

// HandleLatest handles GET /v1/assessments/{projectID}/latest.
func (h *AssessmentHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(projectID, types.ErrCodeValidationInvalidProjectID); err != nil {
		core.Error(w, r, err)
		return
	}

	a, err := h.service.GetLatest(r.Context(), projectID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, a)
}

// HandleHistory handles GET /v1/assessments/{projectID}/history?limit.
func (h *AssessmentHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.service.GetHistory(r.Context(), projectID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, list)
}

// HandleGet handles GET /v1/assessments/{id}.
func (h *AssessmentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(id, types.ErrCodeValidationInvalidID); err != nil {
		core.Error(w, r, err)
		return
	}

	a, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, a)
}

// HandleUpdate handles PUT /v1/assessments/{id}. Omitted sub-scores keep
// their stored values; the composite is always recomputed.
func (h *AssessmentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ResourceID(id, types.ErrCodeValidationInvalidID); err != nil {
		core.Error(w, r, err)
		return
	}

	var req updateAssessmentRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	a, err := h.service.Update(r.Context(), id, assessment.UpdateInput{
		WeatherScore:    req.WeatherScore,
		FloodScore:      req.FloodScore,
		EarthquakeScore: req.EarthquakeScore,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, a)
}

// HandleDelete handles DELETE /v1/assessments/{id}.
func (h *AssessmentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
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
