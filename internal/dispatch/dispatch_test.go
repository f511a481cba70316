package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/mtanda/cloud-instance-metrics/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCloudWatchAPI struct {
	dataInputs  []*cloudwatch.GetMetricDataInput
	statsInputs []*cloudwatch.GetMetricStatisticsInput
	err         error
}

func (m *mockCloudWatchAPI) GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	m.dataInputs = append(m.dataInputs, params)
	if m.err != nil {
		return nil, m.err
	}
	output := &cloudwatch.GetMetricDataOutput{}
	// answer in reverse order to make sure nothing relies on positions
	for i := len(params.MetricDataQueries) - 1; i >= 0; i-- {
		q := params.MetricDataQueries[i]
		output.MetricDataResults = append(output.MetricDataResults, types.MetricDataResult{
			Id:         q.Id,
			Label:      q.MetricStat.Metric.MetricName,
			StatusCode: types.StatusCodeComplete,
			Timestamps: []time.Time{aws.ToTime(params.StartTime)},
			Values:     []float64{float64(i)},
		})
	}
	return output, nil
}

func (m *mockCloudWatchAPI) GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	m.statsInputs = append(m.statsInputs, params)
	if m.err != nil {
		return nil, m.err
	}
	start := aws.ToTime(params.StartTime)
	return &cloudwatch.GetMetricStatisticsOutput{
		Label: params.MetricName,
		Datapoints: []types.Datapoint{
			{Timestamp: aws.Time(start.Add(time.Minute)), Maximum: aws.Float64(2)},
			{Timestamp: aws.Time(start), Maximum: aws.Float64(1)},
			{Timestamp: aws.Time(start), Average: aws.Float64(9)},
		},
	}, nil
}

var (
	t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func testBatch(t *testing.T, ids ...string) model.Batch {
	batch, err := query.BuildBatch(model.Compute, model.ComputeCPUMetric, model.QueryRequest{
		Range:     model.TimeRange{Start: t0, End: t1},
		Period:    300,
		Statistic: model.Average,
	}, ids)
	require.NoError(t, err)
	return batch
}

func TestExecute(t *testing.T) {
	client := &mockCloudWatchAPI{}
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	d := New(client, nil, metrics)

	batch := testBatch(t, "i-1", "i-2", "i-3")
	output, err := d.Execute(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, client.dataInputs, 1)
	assert.Len(t, client.dataInputs[0].MetricDataQueries, 3)

	series := Correlate(batch, output)
	require.Len(t, series, 3)
	for _, s := range series {
		id, ok := batch.InstanceFor(s.QueryID)
		require.True(t, ok)
		assert.Equal(t, id, s.Descriptor.DimensionValue)
		assert.Equal(t, "Complete", s.Status)
		require.Len(t, s.Datapoints, 1)
	}
	// q2 was answered first
	assert.Equal(t, "i-3", series[0].Descriptor.DimensionValue)
	assert.Equal(t, float64(2), series[0].Datapoints[0].Value)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.apiCallsTotal.WithLabelValues("GetMetricData", "AWS/EC2", "success")))
}

func TestExecute_EmptyBatch(t *testing.T) {
	client := &mockCloudWatchAPI{}
	d := New(client, nil, nil)
	_, err := d.Execute(context.Background(), model.Batch{})
	assert.ErrorIs(t, err, query.ErrEmptyBatch)
	assert.Empty(t, client.dataInputs)
}

func TestExecute_BackendError(t *testing.T) {
	backendErr := &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}
	client := &mockCloudWatchAPI{err: backendErr}
	metrics := NewMetrics(prometheus.NewRegistry())
	d := New(client, nil, metrics)

	_, err := d.Execute(context.Background(), testBatch(t, "i-1"))
	require.Error(t, err)
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Throttling", apiErr.ErrorCode())
	assert.Len(t, client.dataInputs, 1, "no retry")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.apiCallsTotal.WithLabelValues("GetMetricData", "AWS/EC2", "error")))

	_, err = d.ExecuteSingle(context.Background(), &cloudwatch.GetMetricStatisticsInput{Namespace: aws.String("AWS/EC2")})
	assert.ErrorIs(t, err, backendErr)
	assert.Len(t, client.statsInputs, 1)
}

func TestExecuteSingle(t *testing.T) {
	client := &mockCloudWatchAPI{}
	d := New(client, nil, nil)

	desc := model.NewDescriptor(model.Compute, model.ComputeCPUMetric, "i-9")
	input, err := query.BuildSingle(desc, model.QueryRequest{
		Range:     model.TimeRange{Start: t0, End: t1},
		Period:    60,
		Statistic: model.Maximum,
	})
	require.NoError(t, err)

	output, err := d.ExecuteSingle(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, client.statsInputs, 1)
	assert.Same(t, input, client.statsInputs[0])

	s := StatisticsSeries(desc, model.Maximum, output)
	assert.Equal(t, "CPUUtilization", s.Label)
	assert.Equal(t, []model.Datapoint{
		{Timestamp: t0, Value: 1},
		{Timestamp: t0.Add(time.Minute), Value: 2},
	}, s.Datapoints)
}

func TestCorrelate_UnknownID(t *testing.T) {
	batch := testBatch(t, "i-1")
	series := Correlate(batch, &cloudwatch.GetMetricDataOutput{
		MetricDataResults: []types.MetricDataResult{
			{Id: aws.String("q0"), Values: []float64{1, 2}, Timestamps: []time.Time{t0}},
			{Id: aws.String("q7")},
		},
	})
	require.Len(t, series, 1)
	assert.Equal(t, "i-1", series[0].Descriptor.DimensionValue)
	assert.Len(t, series[0].Datapoints, 1)

	assert.Nil(t, Correlate(batch, nil))
}
