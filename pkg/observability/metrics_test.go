package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewIsolatedCollector("test")

	c.RecordRemoteRequest(context.Background(), "list", 200, 0.01, nil)
	c.RecordRemoteRequest(context.Background(), "update", 500, 0.02, errors.New("boom"))
	c.RecordMutation("update", "rolled_back")
	c.RecordRefresh("committed")
	c.RecordStaleRefreshDropped()
	c.RecordStaleRefreshDropped()
	c.RecordMergeDecision("fold")
	c.RecordHTTPRequest("GET", "/api/v1/items/", 200, 0.003)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.RemoteRequests.WithLabelValues("list", "200", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RemoteRequests.WithLabelValues("update", "500", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Mutations.WithLabelValues("update", "rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Refreshes.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.StaleRefreshDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.MergeDecisions.WithLabelValues("fold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/v1/items/", "200")))
}

func TestCollectorHandlerServesRegistry(t *testing.T) {
	c := NewIsolatedCollector("test")
	c.RecordMergeDecision("consolidate")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_merge_decisions_total{decision="consolidate"} 1`)
}

func TestNewCollectorIsShared(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	assert.Same(t, NewCollector("a"), NewCollector("b"))
	assert.NotSame(t, NewIsolatedCollector("a"), NewIsolatedCollector("a"))
}

type fakeCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestCloudWatchMetrics(t *testing.T) {
	fake := &fakeCloudWatch{}
	m := NewCloudWatchMetrics("GroceryList", fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.RecordRemoteRequest(ctx, "create", 201, 0.25, nil)
	m.RecordMergeDecision("insert")

	require.Len(t, fake.inputs, 2)

	remote := fake.inputs[0]
	assert.Equal(t, "GroceryList", aws.ToString(remote.Namespace))
	require.Len(t, remote.MetricData, 2)
	assert.Equal(t, "RemoteRequestLatency", aws.ToString(remote.MetricData[0].MetricName))
	assert.Equal(t, 250.0, aws.ToFloat64(remote.MetricData[0].Value))
	assert.Equal(t, types.StandardUnitMilliseconds, remote.MetricData[0].Unit)
	assert.Len(t, remote.MetricData[0].Dimensions, 3)
	assert.Equal(t, "RemoteRequestCount", aws.ToString(remote.MetricData[1].MetricName))

	decision := fake.inputs[1].MetricData[0]
	assert.Equal(t, "MergeDecision", aws.ToString(decision.MetricName))
	assert.Equal(t, "insert", aws.ToString(decision.Dimensions[0].Value))
}

func TestCloudWatchMetricsTolerateFailures(t *testing.T) {
	fake := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewCloudWatchMetrics("GroceryList", fake, nil)

	assert.NotPanics(t, func() { m.RecordStaleRefreshDropped() })
	assert.Len(t, fake.inputs, 1)

	noop := NewCloudWatchMetrics("GroceryList", nil, nil)
	assert.NotPanics(t, func() { noop.RecordMutation("delete", "committed") })
}
