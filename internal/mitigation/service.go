package mitigation

import (
	"context"
	"log/slog"

	"resilience/internal/db"
	"resilience/internal/types"
)

// PlanStore persists plans. Implemented by db.MitigationPlanRepository.
type PlanStore interface {
	Create(ctx context.Context, p *types.MitigationPlan) error
	FindLatest(ctx context.Context, projectID string) (*types.MitigationPlan, error)
	GetByID(ctx context.Context, id string) (*types.MitigationPlan, error)
	History(ctx context.Context, projectID string, limit int) ([]*types.MitigationPlan, error)
	UpdateRecommendations(ctx context.Context, p *types.MitigationPlan) error
	Delete(ctx context.Context, id string) (bool, error)
}

// AssessmentReader loads the assessment a plan is derived from.
type AssessmentReader interface {
	FindLatest(ctx context.Context, projectID string) (*types.RiskAssessment, error)
}

// Metrics records plan generation outcomes.
type Metrics interface {
	RecordPlan(provider types.AIProviderTag, fellBack bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordPlan(types.AIProviderTag, bool) {}

// Generator produces recommendations, preferring the AI provider when one is
// configured and falling back to RuleBased on any failure.
type Generator struct {
	ai     AIProvider
	logger *slog.Logger
}

// NewGenerator builds a Generator. A nil ai uses rules only.
func NewGenerator(ai AIProvider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{ai: ai, logger: logger}
}

// Generate returns the recommendations, the tag of the generator that
// produced them and whether the AI path was attempted and abandoned.
func (g *Generator) Generate(ctx context.Context, in Input) ([]types.Recommendation, types.AIProviderTag, bool) {
	if g.ai == nil {
		return RuleBased(in), types.AIProviderNone, false
	}
	recs, err := g.ai.Generate(ctx, in)
	if err != nil {
		types.LoggerFromContext(ctx, g.logger).WarnContext(ctx, "AI mitigation failed, using rule-based plan",
			"provider", g.ai.Tag(), "error", err)
		return RuleBased(in), types.AIProviderNone, true
	}
	return recs, g.ai.Tag(), false
}

// Service generates and manages mitigation plans.
type Service struct {
	plans       PlanStore
	assessments AssessmentReader
	generator   *Generator
	metrics     Metrics
	logger      *slog.Logger
}

// NewService wires a Service. metrics and logger may be nil.
func NewService(plans PlanStore, assessments AssessmentReader, generator *Generator, metrics Metrics, logger *slog.Logger) *Service {
	if generator == nil {
		generator = NewGenerator(nil, logger)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		plans:       plans,
		assessments: assessments,
		generator:   generator,
		metrics:     metrics,
		logger:      logger,
	}
}

// GenerateForProject builds a plan from the project's latest assessment.
func (s *Service) GenerateForProject(ctx context.Context, projectID, author string) (*types.MitigationPlan, error) {
	a, err := s.assessments.FindLatest(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.GenerateFromAssessment(ctx, a, author)
}

// GenerateFromAssessment builds and persists a plan for a. The plan's
// priority is the assessment's risk level.
func (s *Service) GenerateFromAssessment(ctx context.Context, a *types.RiskAssessment, author string) (*types.MitigationPlan, error) {
	recs, tag, fellBack := s.generator.Generate(ctx, InputFromAssessment(a))

	assessmentID := a.ID
	p := &types.MitigationPlan{
		ProjectID:       a.ProjectID,
		AssessmentID:    &assessmentID,
		PriorityLevel:   a.RiskLevel,
		Recommendations: recs,
		CreatedBy:       author,
		AIProvider:      tag,
		PromptVersion:   PromptVersion,
	}
	if err := s.plans.Create(ctx, p); err != nil {
		return nil, err
	}

	s.metrics.RecordPlan(tag, fellBack)
	types.LoggerFromContext(ctx, s.logger).InfoContext(ctx, "mitigation plan created",
		"plan_id", p.ID,
		"project_id", p.ProjectID,
		"assessment_id", assessmentID,
		"priority_level", p.PriorityLevel,
		"ai_provider", tag,
		"recommendations", len(recs),
	)
	return p, nil
}

// Latest returns the project's newest plan.
func (s *Service) Latest(ctx context.Context, projectID string) (*types.MitigationPlan, error) {
	return s.plans.FindLatest(ctx, projectID)
}

// History lists plans newest first. limit defaults to 50 and is capped at 200.
func (s *Service) History(ctx context.Context, projectID string, limit int) ([]*types.MitigationPlan, error) {
	if limit <= 0 {
		limit = db.DefaultHistoryLimit
	}
	limit = min(limit, db.MaxHistoryLimit)

	list, err := s.plans.History(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*types.MitigationPlan{}
	}
	return list, nil
}

// Get returns one plan.
func (s *Service) Get(ctx context.Context, id string) (*types.MitigationPlan, error) {
	return s.plans.GetByID(ctx, id)
}

// SetRecommendationStatus marks one recommendation PENDING or DONE.
func (s *Service) SetRecommendationStatus(ctx context.Context, planID string, index int, status types.RecommendationStatus) (*types.MitigationPlan, error) {
	if !status.Valid() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStatus,
			"status must be PENDING or DONE", nil, map[string]any{"status": status})
	}
	p, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(p.Recommendations) {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidID,
			"recommendation index out of range", nil,
			map[string]any{"index": index, "count": len(p.Recommendations)})
	}
	if p.Recommendations[index].Status == status {
		return p, nil
	}
	p.Recommendations[index].Status = status
	if err := s.plans.UpdateRecommendations(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a plan, returning not_found_mitigation_plan if it did not
// exist.
func (s *Service) Delete(ctx context.Context, id string) error {
	existed, err := s.plans.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFoundPlan,
			"mitigation plan not found", nil, map[string]any{"id": id})
	}
	return nil
}
