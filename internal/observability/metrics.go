// Package observability emits operational metrics to CloudWatch.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"opsdeck/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsCollector is the metric surface the rest of the platform depends on.
// Emission is best-effort: failures are logged, never propagated.
type MetricsCollector interface {
	CountAPIRequest(ctx context.Context, endpoint, method string, status int, latency time.Duration)
	CountRemindersScheduled(ctx context.Context, businessID string, scheduled, skippedPast int)
	CountRemindersPruned(ctx context.Context, pruned int)
	CountSMSDispatch(ctx context.Context, businessID string, ok bool)
}

var _ MetricsCollector = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes platform metrics under the OpsDeck namespace.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a collector publishing to types.MetricNamespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger *slog.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// CountAPIRequest records one API call: a count metric with endpoint, method,
// and status dimensions plus a latency metric in milliseconds.
func (m *CloudWatchMetrics) CountAPIRequest(ctx context.Context, endpoint, method string, status int, latency time.Duration) {
	statusClass := statusClass(status)
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimStatus), Value: aws.String(statusClass)},
	}
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
		{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(latency.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims[:2:2],
		},
	})
}

// CountRemindersScheduled records the outcome of one scheduling call.
func (m *CloudWatchMetrics) CountRemindersScheduled(ctx context.Context, businessID string, scheduled, skippedPast int) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimBusinessID), Value: aws.String(businessID)},
	}
	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricRemindersScheduled),
			Value:      aws.Float64(float64(scheduled)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	}
	if skippedPast > 0 {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricRemindersSkipped),
			Value:      aws.Float64(float64(skippedPast)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		})
	}
	m.put(ctx, data)
}

// CountRemindersPruned records the size of one garbage-collection sweep.
func (m *CloudWatchMetrics) CountRemindersPruned(ctx context.Context, pruned int) {
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricRemindersPruned),
			Value:      aws.Float64(float64(pruned)),
			Unit:       cwtypes.StandardUnitCount,
		},
	})
}

// CountSMSDispatch records one SMS handoff outcome.
func (m *CloudWatchMetrics) CountSMSDispatch(ctx context.Context, businessID string, ok bool) {
	name := types.MetricSMSDispatched
	if !ok {
		name = types.MetricSMSFailed
	}
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(name),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(types.DimBusinessID), Value: aws.String(businessID)},
			},
		},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to publish metrics", "error", err, "datums", len(data))
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// NoopMetrics discards every metric. Used in tests and local runs where
// CloudWatch is not configured.
type NoopMetrics struct{}

var _ MetricsCollector = NoopMetrics{}

func (NoopMetrics) CountAPIRequest(context.Context, string, string, int, time.Duration) {}
func (NoopMetrics) CountRemindersScheduled(context.Context, string, int, int)           {}
func (NoopMetrics) CountRemindersPruned(context.Context, int)                           {}
func (NoopMetrics) CountSMSDispatch(context.Context, string, bool)                      {}
