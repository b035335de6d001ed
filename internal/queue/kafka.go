package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"resilience/internal/types"
)

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes assessment events to a topic, keyed by project ID so
// one project's events stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaWriter builds the production writer for brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// NewKafkaPublisher wraps a writer.
func NewKafkaPublisher(writer MessageWriter, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// PublishAssessment implements assessment.EventPublisher.
func (p *KafkaPublisher) PublishAssessment(ctx context.Context, evt types.AssessmentEvent) error {
	msg, err := toKafkaMessage(evt)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("queue: failed to write assessment event: %w", err)
	}
	p.logger.InfoContext(ctx, "assessment event written",
		"event_id", evt.EventID,
		"assessment_id", evt.Assessment.ID,
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(evt types.AssessmentEvent) (kafkago.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize assessment event: %w", err)
	}
	a := evt.Assessment
	return kafkago.Message{
		Key:   []byte(a.ProjectID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: types.AttrEventType, Value: []byte(types.EventTypeAssessmentCreated)},
			{Key: types.AttrRiskLevel, Value: []byte(a.RiskLevel)},
			{Key: types.AttrModelVersion, Value: []byte(a.ModelVersion)},
			{Key: "occurred_at", Value: []byte(evt.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
