package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes operational metrics to CloudWatch. Calls are best
// effort: a metrics failure never fails the operation being measured.
type Metrics struct {
	namespace string
	client    *awscloudwatch.Client
}

// NewMetrics creates a metrics instance
func NewMetrics(namespace string, client *awscloudwatch.Client) *Metrics {
	return &Metrics{
		namespace: namespace,
		client:    client,
	}
}

// IncrementCounter records a count metric with optional dimensions
func (m *Metrics) IncrementCounter(ctx context.Context, name string, dimensions map[string]string) {
	m.put(ctx, name, 1, types.StandardUnitCount, dimensions)
}

// RecordDuration records a latency metric in milliseconds
func (m *Metrics) RecordDuration(ctx context.Context, name string, d time.Duration, dimensions map[string]string) {
	m.put(ctx, name, float64(d.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

// RecordValue records an arbitrary numeric metric
func (m *Metrics) RecordValue(ctx context.Context, name string, value float64, dimensions map[string]string) {
	m.put(ctx, name, value, types.StandardUnitNone, dimensions)
}

func (m *Metrics) put(ctx context.Context, name string, value float64, unit types.StandardUnit, dimensions map[string]string) {
	if m.client == nil {
		return
	}

	var dims []types.Dimension
	for key, val := range dimensions {
		dims = append(dims, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(val),
		})
	}

	// Errors are deliberately dropped; metrics must not disturb the
	// measured path.
	m.client.PutMetricData(ctx, &awscloudwatch.PutMetricDataInput{ //nolint:errcheck
		Namespace: aws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Dimensions: dims,
				Timestamp:  aws.Time(time.Now()),
			},
		},
	})
}
