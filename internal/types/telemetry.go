package types

// Telemetry metric names for CloudWatch.
const (
	MetricAssessmentCreated  = "AssessmentCreated"
	MetricSnapshotIngested   = "SnapshotIngested"
	MetricPlanGenerated      = "PlanGenerated"
	MetricPlanFallback       = "PlanFallback"
	MetricExternalAPIFailure = "ExternalAPIFailure"
	MetricAPILatency         = "APILatency"
	MetricQueueLag           = "MitigationQueueLag"

	DimRiskLevel  = "RiskLevel"
	DimProvider   = "Provider"
	DimQueue      = "Queue"
	DimAIProvider = "AIProvider"

	MetricNamespace = "Resilience"
)
