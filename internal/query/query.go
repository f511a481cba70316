package query

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
)

// CPUQueryIDPrefix is used by the compute CPU batch.
const CPUQueryIDPrefix = "cpu"

// GetMetricData rejects empty query sets, so an empty batch is never built.
var ErrEmptyBatch = errors.New("no instances to query")

// BuildBatch builds one query per instance id. Query ids are positional
// ({prefix}{i}); use Batch.InstanceFor to map a result back to its instance.
func BuildBatch(kind model.ServiceKind, metricName string, req model.QueryRequest, instanceIDs []string) (model.Batch, error) {
	return BuildBatchWithPrefix(kind, kind.Spec().QueryIDPrefix, metricName, req, instanceIDs)
}

func BuildBatchWithPrefix(kind model.ServiceKind, prefix string, metricName string, req model.QueryRequest, instanceIDs []string) (model.Batch, error) {
	if err := req.Validate(); err != nil {
		return model.Batch{}, err
	}
	if metricName == "" {
		return model.Batch{}, fmt.Errorf("%w: empty", model.ErrInvalidMetric)
	}
	if len(instanceIDs) == 0 {
		return model.Batch{}, ErrEmptyBatch
	}

	queries := make([]model.Query, 0, len(instanceIDs))
	for i, id := range instanceIDs {
		queries = append(queries, model.Query{
			ID:         prefix + strconv.Itoa(i),
			Descriptor: model.NewDescriptor(kind, metricName, id),
			Request:    req,
		})
	}
	return model.Batch{Queries: queries}, nil
}

// MetricDataInput converts a batch into a single GetMetricData request.
func MetricDataInput(batch model.Batch) (*cloudwatch.GetMetricDataInput, error) {
	if batch.Len() == 0 {
		return nil, ErrEmptyBatch
	}

	// every query shares the request
	req := batch.Queries[0].Request
	queries := make([]types.MetricDataQuery, 0, batch.Len())
	for _, q := range batch.Queries {
		queries = append(queries, types.MetricDataQuery{
			Id: aws.String(q.ID),
			MetricStat: &types.MetricStat{
				Metric: &types.Metric{
					Namespace:  aws.String(q.Descriptor.Namespace),
					MetricName: aws.String(q.Descriptor.MetricName),
					Dimensions: q.Descriptor.Dimensions(),
				},
				Period: aws.Int32(q.Request.Period),
				Stat:   aws.String(string(q.Request.Statistic)),
				Unit:   q.Request.Unit,
			},
			ReturnData: aws.Bool(true),
		})
	}
	return &cloudwatch.GetMetricDataInput{
		StartTime:         aws.Time(req.Range.Start),
		EndTime:           aws.Time(req.Range.End),
		MetricDataQueries: queries,
		ScanBy:            types.ScanByTimestampAscending,
	}, nil
}

// BuildSingle builds a GetMetricStatistics request for one metric of one
// instance, the degenerate single-query case of a batch.
func BuildSingle(desc model.MetricDescriptor, req model.QueryRequest) (*cloudwatch.GetMetricStatisticsInput, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if desc.MetricName == "" {
		return nil, fmt.Errorf("%w: empty", model.ErrInvalidMetric)
	}
	return &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(desc.Namespace),
		MetricName: aws.String(desc.MetricName),
		Dimensions: desc.Dimensions(),
		StartTime:  aws.Time(req.Range.Start),
		EndTime:    aws.Time(req.Range.End),
		Period:     aws.Int32(req.Period),
		Statistics: []types.Statistic{types.Statistic(req.Statistic)},
		Unit:       req.Unit,
	}, nil
}
