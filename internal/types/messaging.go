package types

// Message attribute keys carried on queue and topic envelopes so consumers
// can route without decoding the body.
const (
	AttrEventType    = "event_type"
	AttrProjectID    = "project_id"
	AttrRiskLevel    = "risk_level"
	AttrModelVersion = "model_version"
)

// EventTypeAssessmentCreated is emitted once per persisted assessment.
const EventTypeAssessmentCreated = "assessment.created"

// MitigationRequest is the SQS payload consumed by the mitigation worker.
// It is the AssessmentEvent envelope plus the retry counter the worker bumps
// when it re-enqueues after a transient failure.
type MitigationRequest struct {
	AssessmentEvent
	RetryCount int `json:"retry_count"`
}
