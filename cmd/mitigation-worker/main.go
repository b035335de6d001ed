// Package main is the entrypoint for the Mitigation Worker Lambda function.
//
// The worker consumes assessment.created events from the assessment SQS
// queue and persists a mitigation plan for each assessment, so plans exist
// without a client calling POST /v1/mitigation/generate.
//
// Cold Start (main):
//  1. Load configuration and initialize the JSON logger.
//  2. Open the Postgres pool.
//  3. Load the AWS SDK configuration and build SQS and CloudWatch clients.
//  4. Wire the mitigation service with the configured AI provider.
//  5. Register the handler and call lambda.Start.
//
// Per message:
//
//	Unparseable body      -> logged and acknowledged (never retried).
//	Plan created          -> acknowledged.
//	Transient failure     -> re-published with exponential delay and
//	                         acknowledged, until the retry budget is spent.
//	Permanent or exhausted -> reported in batchItemFailures so the redrive
//	                         policy moves it to the dead-letter queue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"resilience/internal/config"
	"resilience/internal/db"
	"resilience/internal/mitigation"
	"resilience/internal/observability"
	"resilience/internal/queue"
	"resilience/internal/types"
)

// workerAuthor is recorded as created_by on plans the worker generates.
const workerAuthor = "system"

// PlanGenerator builds and persists a plan. Implemented by mitigation.Service.
type PlanGenerator interface {
	GenerateFromAssessment(ctx context.Context, a *types.RiskAssessment, author string) (*types.MitigationPlan, error)
}

// Requeuer re-publishes a request with a delay. Implemented by
// queue.SQSPublisher.
type Requeuer interface {
	Requeue(ctx context.Context, req types.MitigationRequest, delay time.Duration) error
}

// LagRecorder records how long a message waited in the queue.
type LagRecorder interface {
	RecordQueueLag(ctx context.Context, queue string, lag time.Duration)
}

// RetryPolicy bounds re-publication of transiently failing requests.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy doubles from 30s and stays within the SQS delay ceiling.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   30 * time.Second,
	MaxDelay:    15 * time.Minute,
}

// Delay returns the backoff before attempt retryCount+1.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay << retryCount
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Handler holds the dependencies for the mitigation worker Lambda handler.
type Handler struct {
	plans     PlanGenerator
	requeuer  Requeuer
	metrics   LagRecorder
	retry     RetryPolicy
	queueName string
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewHandler builds a Handler with DefaultRetryPolicy and the real clock.
func NewHandler(plans PlanGenerator, requeuer Requeuer, metrics LagRecorder, queueName string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		plans:     plans,
		requeuer:  requeuer,
		metrics:   metrics,
		retry:     DefaultRetryPolicy,
		queueName: queueName,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
	}
}

// Handle processes an SQS batch. Each message is handled independently and
// only failed messages are returned, so SQS redelivers nothing else.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process SQS message",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var req types.MitigationRequest
	if err := json.Unmarshal([]byte(record.Body), &req); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal mitigation request",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}
	a := req.Assessment
	if a.ID == "" || a.ProjectID == "" {
		h.logger.ErrorContext(ctx, "mitigation request carries no assessment",
			"message_id", record.MessageId,
			"event_id", req.EventID,
		)
		return nil
	}

	logger := h.logger.With(
		"event_id", req.EventID,
		"trace_id", req.TraceID,
		"assessment_id", a.ID,
		"project_id", a.ProjectID,
		"retry_count", req.RetryCount,
	)
	ctx = types.WithLogger(types.WithRequestID(ctx, req.TraceID), logger)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.queueName, h.clock.Since(sentAt))
		}
	}

	plan, err := h.plans.GenerateFromAssessment(ctx, &a, workerAuthor)
	if err == nil {
		logger.InfoContext(ctx, "mitigation plan generated",
			"plan_id", plan.ID,
			"ai_provider", plan.AIProvider,
			"recommendations", len(plan.Recommendations),
		)
		return nil
	}

	if !isTransient(err) {
		return fmt.Errorf("generate mitigation plan: %w", err)
	}
	if req.RetryCount >= h.retry.MaxAttempts {
		return fmt.Errorf("generate mitigation plan after %d retries: %w", req.RetryCount, err)
	}

	delay := h.retry.Delay(req.RetryCount)
	if rqErr := h.requeuer.Requeue(ctx, req, delay); rqErr != nil {
		return errors.Join(err, fmt.Errorf("requeue: %w", rqErr))
	}
	logger.WarnContext(ctx, "mitigation plan generation failed, retry scheduled",
		"delay_seconds", int(delay.Seconds()),
		"error", err,
	)
	return nil
}

// isTransient reports whether err is worth retrying. Errors outside the
// AppError taxonomy are assumed transient.
func isTransient(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus() >= http.StatusInternalServerError
	}
	return true
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	cfg, err := config.LoadConfig(config.ChainProvider{
		config.NewEnvVarProvider(),
		config.NewFileProvider(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	logger.Info("Mitigation Worker Lambda initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	ctx := context.Background()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		logger.Error("Failed to parse DATABASE_URL", "error", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error("Failed to open database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := queue.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	requeuer := queue.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.AssessmentQueueURL, logger)

	generator := mitigation.NewGenerator(mitigation.ProviderFromConfig(cfg.Mitigation, logger), logger)
	svc := mitigation.NewService(
		db.NewMitigationPlanRepository(pool),
		db.NewAssessmentRepository(pool),
		generator,
		metrics,
		logger,
	)

	queueName := path.Base(cfg.AWS.AssessmentQueueURL)
	handler := NewHandler(svc, requeuer, metrics, queueName, logger)

	logger.Info("Mitigation Worker Lambda initialized",
		"queue", queueName,
		"metric_namespace", cfg.Observability.MetricNamespace,
		"ai_provider", cfg.Mitigation.AIProvider,
		"max_retries", handler.retry.MaxAttempts,
	)

	lambda.Start(handler.Handle)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
