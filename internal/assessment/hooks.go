package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"resilience/internal/types"
)

// Hook runs after an assessment has been persisted. A hook error is logged
// by the Service and never fails the run.
type Hook interface {
	AfterAssessment(ctx context.Context, a *types.RiskAssessment) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, a *types.RiskAssessment) error

func (f HookFunc) AfterAssessment(ctx context.Context, a *types.RiskAssessment) error {
	return f(ctx, a)
}

// NoopHook does nothing.
type NoopHook struct{}

func (NoopHook) AfterAssessment(context.Context, *types.RiskAssessment) error { return nil }

// MultiHook runs every hook in order and joins their errors. A failing hook
// does not stop the ones after it.
type MultiHook []Hook

func (m MultiHook) AfterAssessment(ctx context.Context, a *types.RiskAssessment) error {
	var errs []error
	for _, h := range m {
		if err := h.AfterAssessment(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StatusUpdater writes the latest risk level back onto the project.
// Implemented by db.ProjectRepository.
type StatusUpdater interface {
	UpdateRiskStatus(ctx context.Context, projectID string, level types.RiskLevel) error
}

// ProjectStatusHook mirrors the assessment's risk level onto the project row.
type ProjectStatusHook struct {
	Projects StatusUpdater
}

func (h ProjectStatusHook) AfterAssessment(ctx context.Context, a *types.RiskAssessment) error {
	return h.Projects.UpdateRiskStatus(ctx, a.ProjectID, a.RiskLevel)
}

// EventPublisher sends assessment events to a queue or topic.
type EventPublisher interface {
	PublishAssessment(ctx context.Context, evt types.AssessmentEvent) error
}

// EventHook publishes an assessment.created event for each assessment.
type EventHook struct {
	publisher EventPublisher
	clock     clockwork.Clock
}

// NewEventHook builds an EventHook. A nil clock uses the real clock.
func NewEventHook(publisher EventPublisher, clock clockwork.Clock) *EventHook {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EventHook{publisher: publisher, clock: clock}
}

func (h *EventHook) AfterAssessment(ctx context.Context, a *types.RiskAssessment) error {
	return h.publisher.PublishAssessment(ctx, types.AssessmentEvent{
		EventID:    uuid.NewString(),
		TraceID:    types.GetRequestID(ctx),
		OccurredAt: h.clock.Now().UTC().Truncate(time.Millisecond),
		Assessment: *a,
	})
}
