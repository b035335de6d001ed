package observability

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"resilience/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// putTimeout bounds each PutMetricData call. Metric emission must never
// stall the worker.
const putTimeout = 2 * time.Second

// CloudWatchMetrics emits pipeline metrics from the Lambda worker, where a
// Prometheus scrape endpoint is not reachable. Failures are logged and
// swallowed.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics publishes into namespace, or types.MetricNamespace
// when empty.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func (m *CloudWatchMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		names := make([]string, len(data))
		for i, d := range data {
			names[i] = aws.ToString(d.MetricName)
		}
		m.logger.Error("failed to put metric data", "error", err.Error(), "metrics", names)
	}
}

func count(name string, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

// RecordPlan implements mitigation.Metrics.
func (m *CloudWatchMetrics) RecordPlan(provider types.AIProviderTag, fellBack bool) {
	data := []cwtypes.MetricDatum{count(types.MetricPlanGenerated, dim(types.DimAIProvider, string(provider)))}
	if fellBack {
		data = append(data, count(types.MetricPlanFallback))
	}
	m.put(context.Background(), data...)
}

// RecordAssessment implements assessment.Metrics.
func (m *CloudWatchMetrics) RecordAssessment(level types.RiskLevel, _ string) {
	m.put(context.Background(), count(types.MetricAssessmentCreated, dim(types.DimRiskLevel, string(level))))
}

// RecordSnapshot implements ingest.Metrics.
func (m *CloudWatchMetrics) RecordSnapshot(source string, seismicAvailable bool) {
	m.put(context.Background(), count(types.MetricSnapshotIngested,
		dim(types.DimProvider, source),
		dim("SeismicAvailable", strconv.FormatBool(seismicAvailable))))
}

// ObserveProviderCall implements external.CallObserver. Latency is always
// recorded; failures additionally emit ExternalAPIFailure.
func (m *CloudWatchMetrics) ObserveProviderCall(provider string, err error, elapsed time.Duration) {
	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(elapsed.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{dim(types.DimProvider, provider)},
	}}
	if err != nil {
		data = append(data, count(types.MetricExternalAPIFailure, dim(types.DimProvider, provider)))
	}
	m.put(context.Background(), data...)
}

// RecordQueueLag records the delay between an event being published and the
// worker picking it up.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, queue string, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{dim(types.DimQueue, queue)},
	})
}
