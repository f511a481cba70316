package query

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func testRequest() model.QueryRequest {
	return model.QueryRequest{
		Range:     model.TimeRange{Start: t0, End: t1},
		Period:    300,
		Statistic: model.Average,
	}
}

func TestBuildBatch(t *testing.T) {
	batch, err := BuildBatch(model.Compute, "CPUUtilization", testRequest(), []string{"i-1", "i-2"})
	require.NoError(t, err)
	require.Equal(t, 2, batch.Len())

	expected := []model.Query{
		{
			ID: "q0",
			Descriptor: model.MetricDescriptor{
				Namespace:      "AWS/EC2",
				MetricName:     "CPUUtilization",
				DimensionKey:   "InstanceId",
				DimensionValue: "i-1",
			},
			Request: testRequest(),
		},
		{
			ID: "q1",
			Descriptor: model.MetricDescriptor{
				Namespace:      "AWS/EC2",
				MetricName:     "CPUUtilization",
				DimensionKey:   "InstanceId",
				DimensionValue: "i-2",
			},
			Request: testRequest(),
		},
	}
	assert.Equal(t, expected, batch.Queries)
}

func TestBuildBatch_Positions(t *testing.T) {
	ids := []string{"db-c", "db-a", "db-b", "db-a"}
	batch, err := BuildBatchWithPrefix(model.ManagedDatabase, CPUQueryIDPrefix, "FreeableMemory", testRequest(), ids)
	require.NoError(t, err)
	require.Equal(t, len(ids), batch.Len())

	seen := make(map[string]struct{})
	for i, q := range batch.Queries {
		assert.Equal(t, ids[i], q.Descriptor.DimensionValue)
		assert.Equal(t, "AWS/RDS", q.Descriptor.Namespace)
		assert.Equal(t, "DBInstanceIdentifier", q.Descriptor.DimensionKey)
		_, dup := seen[q.ID]
		assert.False(t, dup, "duplicate query id %s", q.ID)
		seen[q.ID] = struct{}{}
	}
	assert.Equal(t, "cpu3", batch.Queries[3].ID)
}

func TestBuildBatch_Invalid(t *testing.T) {
	_, err := BuildBatch(model.Compute, "CPUUtilization", testRequest(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	req := testRequest()
	req.Period = 0
	_, err = BuildBatch(model.Compute, "CPUUtilization", req, []string{"i-1"})
	assert.ErrorIs(t, err, model.ErrInvalidPeriod)

	req = testRequest()
	req.Statistic = "Median"
	_, err = BuildBatch(model.Compute, "CPUUtilization", req, []string{"i-1"})
	assert.ErrorIs(t, err, model.ErrInvalidStatistic)

	_, err = BuildBatch(model.Compute, "", testRequest(), []string{"i-1"})
	assert.ErrorIs(t, err, model.ErrInvalidMetric)
}

func TestMetricDataInput(t *testing.T) {
	batch, err := BuildBatch(model.ManagedDatabase, "ReadIOPS", testRequest(), []string{"db-a"})
	require.NoError(t, err)

	input, err := MetricDataInput(batch)
	require.NoError(t, err)
	assert.Equal(t, t0, aws.ToTime(input.StartTime))
	assert.Equal(t, t1, aws.ToTime(input.EndTime))
	require.Len(t, input.MetricDataQueries, 1)

	q := input.MetricDataQueries[0]
	assert.Equal(t, "q0", aws.ToString(q.Id))
	assert.True(t, aws.ToBool(q.ReturnData))
	assert.Equal(t, "AWS/RDS", aws.ToString(q.MetricStat.Metric.Namespace))
	assert.Equal(t, "ReadIOPS", aws.ToString(q.MetricStat.Metric.MetricName))
	assert.Equal(t, "DBInstanceIdentifier", aws.ToString(q.MetricStat.Metric.Dimensions[0].Name))
	assert.Equal(t, "db-a", aws.ToString(q.MetricStat.Metric.Dimensions[0].Value))
	assert.Equal(t, int32(300), aws.ToInt32(q.MetricStat.Period))
	assert.Equal(t, "Average", aws.ToString(q.MetricStat.Stat))

	_, err = MetricDataInput(model.Batch{})
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestBuildSingle(t *testing.T) {
	req := testRequest()
	req.Statistic = model.Maximum
	input, err := BuildSingle(model.NewDescriptor(model.Compute, model.ComputeCPUMetric, "i-9"), req)
	require.NoError(t, err)

	assert.Equal(t, "AWS/EC2", aws.ToString(input.Namespace))
	assert.Equal(t, "CPUUtilization", aws.ToString(input.MetricName))
	require.Len(t, input.Dimensions, 1)
	assert.Equal(t, "InstanceId", aws.ToString(input.Dimensions[0].Name))
	assert.Equal(t, "i-9", aws.ToString(input.Dimensions[0].Value))
	assert.Equal(t, []types.Statistic{types.StatisticMaximum}, input.Statistics)
	assert.Equal(t, int32(300), aws.ToInt32(input.Period))

	req.Unit = types.StandardUnitPercent
	input, err = BuildSingle(model.NewDescriptor(model.ComputeAgent, "mem_used_percent", "i-9"), req)
	require.NoError(t, err)
	assert.Equal(t, "CWAgent", aws.ToString(input.Namespace))
	assert.Equal(t, types.StandardUnitPercent, input.Unit)

	req.Range.End = req.Range.Start
	_, err = BuildSingle(model.NewDescriptor(model.Compute, model.ComputeCPUMetric, "i-9"), req)
	assert.ErrorIs(t, err, model.ErrInvalidTimeRange)
}
