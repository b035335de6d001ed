// Package queue publishes assessment events to the configured transport (SQS
// or Kafka) for the mitigation worker and other downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"resilience/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// maxDelay is the SQS ceiling for DelaySeconds.
const maxDelay = 15 * time.Minute

// SQSPublisher sends assessment events to one queue.
type SQSPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(client SQSSender, queueURL string, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishAssessment implements assessment.EventPublisher.
func (p *SQSPublisher) PublishAssessment(ctx context.Context, evt types.AssessmentEvent) error {
	return p.send(ctx, types.MitigationRequest{AssessmentEvent: evt}, 0)
}

// Requeue sends req back onto the queue with an incremented retry count,
// delayed by delay (capped at 15 minutes).
func (p *SQSPublisher) Requeue(ctx context.Context, req types.MitigationRequest, delay time.Duration) error {
	req.RetryCount++
	return p.send(ctx, req, min(delay, maxDelay))
}

func (p *SQSPublisher) send(ctx context.Context, req types.MitigationRequest, delay time.Duration) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal assessment event: %w", err)
	}

	a := req.Assessment
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(delay / time.Second),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			types.AttrEventType:    stringAttr(types.EventTypeAssessmentCreated),
			types.AttrProjectID:    stringAttr(a.ProjectID),
			types.AttrRiskLevel:    stringAttr(string(a.RiskLevel)),
			types.AttrModelVersion: stringAttr(a.ModelVersion),
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send assessment event to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "assessment event sent",
		"queue_url", p.queueURL,
		"event_id", req.EventID,
		"assessment_id", a.ID,
		"retry_count", req.RetryCount,
	)
	return nil
}

func stringAttr(v string) sqsTypes.MessageAttributeValue {
	return sqsTypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
