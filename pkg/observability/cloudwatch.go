package observability

import (
	"context"
	"strconv"
	"time"

	"grocerylist/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricDataAPI is the part of the CloudWatch client used here
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes cache and remote store metrics to CloudWatch
type CloudWatchMetrics struct {
	namespace string
	client    PutMetricDataAPI
	logger    *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

var (
	_ ports.CacheMetrics  = (*CloudWatchMetrics)(nil)
	_ ports.RemoteMetrics = (*CloudWatchMetrics)(nil)
)

// NewCloudWatchMetrics creates a CloudWatch publisher. A nil client turns
// every call into a no-op.
func NewCloudWatchMetrics(namespace string, client PutMetricDataAPI, logger *zap.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatchMetrics{
		namespace: namespace,
		client:    client,
		logger:    logger,
		timeout:   2 * time.Second,
		now:       time.Now,
	}
}

// RecordRemoteRequest records latency and count for one store call
func (m *CloudWatchMetrics) RecordRemoteRequest(ctx context.Context, operation string, status int, seconds float64, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	dims := []types.Dimension{
		{Name: aws.String("Operation"), Value: aws.String(operation)},
		{Name: aws.String("Result"), Value: aws.String(result)},
	}
	if status != 0 {
		dims = append(dims, types.Dimension{Name: aws.String("Status"), Value: aws.String(strconv.Itoa(status))})
	}

	m.put(ctx,
		types.MetricDatum{
			MetricName: aws.String("RemoteRequestLatency"),
			Dimensions: dims,
			Value:      aws.Float64(seconds * 1000),
			Unit:       types.StandardUnitMilliseconds,
			Timestamp:  aws.Time(m.now()),
		},
		m.count("RemoteRequestCount", dims),
	)
}

func (m *CloudWatchMetrics) RecordMutation(kind, outcome string) {
	m.put(context.Background(), m.count("CacheMutation", []types.Dimension{
		{Name: aws.String("Kind"), Value: aws.String(kind)},
		{Name: aws.String("Outcome"), Value: aws.String(outcome)},
	}))
}

func (m *CloudWatchMetrics) RecordRefresh(outcome string) {
	m.put(context.Background(), m.count("CacheRefresh", []types.Dimension{
		{Name: aws.String("Outcome"), Value: aws.String(outcome)},
	}))
}

func (m *CloudWatchMetrics) RecordStaleRefreshDropped() {
	m.put(context.Background(), m.count("StaleRefreshDropped", nil))
}

func (m *CloudWatchMetrics) RecordMergeDecision(decision string) {
	m.put(context.Background(), m.count("MergeDecision", []types.Dimension{
		{Name: aws.String("Decision"), Value: aws.String(decision)},
	}))
}

func (m *CloudWatchMetrics) count(name string, dims []types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Dimensions: dims,
		Value:      aws.Float64(1),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(m.now()),
	}
}

func (m *CloudWatchMetrics) put(ctx context.Context, data ...types.MetricDatum) {
	if m.client == nil {
		return
	}

	// The request context may already be cancelled once the store call returned
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("Failed to send metrics", zap.Error(err))
	}
}
