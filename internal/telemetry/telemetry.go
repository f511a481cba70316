package telemetry

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/mtanda/cloud-instance-metrics/internal/awsclient"
	"github.com/mtanda/cloud-instance-metrics/internal/discovery"
	"github.com/mtanda/cloud-instance-metrics/internal/dispatch"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/mtanda/cloud-instance-metrics/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// ClientFactory builds fresh clients for every operation call.
type ClientFactory interface {
	CloudWatch(ctx context.Context, cc model.ClientConfig) (dispatch.CloudWatchAPI, error)
	EC2(ctx context.Context, cc model.ClientConfig) (discovery.EC2API, error)
	RDS(ctx context.Context, cc model.ClientConfig) (discovery.RDSAPI, error)
}

// AWSClients builds real AWS SDK clients.
type AWSClients struct{}

func (AWSClients) CloudWatch(ctx context.Context, cc model.ClientConfig) (dispatch.CloudWatchAPI, error) {
	return awsclient.NewCloudWatch(ctx, cc)
}

func (AWSClients) EC2(ctx context.Context, cc model.ClientConfig) (discovery.EC2API, error) {
	return awsclient.NewEC2(ctx, cc)
}

func (AWSClients) RDS(ctx context.Context, cc model.ClientConfig) (discovery.RDSAPI, error) {
	return awsclient.NewRDS(ctx, cc)
}

// BatchResult is the raw GetMetricData answer together with the batch it
// answers, so results can be mapped back to instances.
type BatchResult struct {
	Batch  model.Batch
	Output *cloudwatch.GetMetricDataOutput
}

func (r *BatchResult) Series() []model.Series {
	if r == nil {
		return nil
	}
	return dispatch.Correlate(r.Batch, r.Output)
}

// Service exposes the metric operations. It holds no per-call state: every
// call resolves its own clients, instance list and query.
type Service struct {
	clients ClientFactory
	limiter *rate.Limiter
	metrics *dispatch.Metrics
}

// New returns a Service. limiter may be nil.
func New(clients ClientFactory, limiter *rate.Limiter, registry prometheus.Registerer) *Service {
	return &Service{
		clients: clients,
		limiter: limiter,
		metrics: dispatch.NewMetrics(registry),
	}
}

func (s *Service) dispatcher(ctx context.Context, cc model.ClientConfig) (*dispatch.Dispatcher, error) {
	client, err := s.clients.CloudWatch(ctx, cc)
	if err != nil {
		return nil, err
	}
	return dispatch.New(client, s.limiter, s.metrics), nil
}

func (s *Service) lister(ctx context.Context, cc model.ClientConfig, kind model.ServiceKind) (discovery.Lister, error) {
	switch kind {
	case model.ManagedDatabase:
		client, err := s.clients.RDS(ctx, cc)
		if err != nil {
			return nil, err
		}
		return discovery.NewManagedDatabaseLister(client), nil
	default:
		client, err := s.clients.EC2(ctx, cc)
		if err != nil {
			return nil, err
		}
		return discovery.NewComputeLister(client), nil
	}
}

// GetComputeCPUMetric returns CPUUtilization statistics of one EC2 instance.
func (s *Service) GetComputeCPUMetric(ctx context.Context, cc model.ClientConfig, instanceID string, tr model.TimeRange, period int32, stat model.Statistic) (*cloudwatch.GetMetricStatisticsOutput, error) {
	return s.single(ctx, cc, model.NewDescriptor(model.Compute, model.ComputeCPUMetric, instanceID), model.QueryRequest{
		Range:     tr,
		Period:    period,
		Statistic: stat,
	})
}

// GetComputeMemoryMetric returns a CloudWatch agent memory metric of one
// EC2 instance.
func (s *Service) GetComputeMemoryMetric(ctx context.Context, cc model.ClientConfig, instanceID string, metricName string, tr model.TimeRange, period int32, stat model.Statistic, unit types.StandardUnit) (*cloudwatch.GetMetricStatisticsOutput, error) {
	kind, err := model.LookupMetric(model.ComputeMemoryMetrics, metricName)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, cc, model.NewDescriptor(kind, metricName, instanceID), model.QueryRequest{
		Range:     tr,
		Period:    period,
		Statistic: stat,
		Unit:      unit,
	})
}

// GetComputeDiskMetric returns a disk metric of one EC2 instance, from
// AWS/EC2 or CWAgent depending on the metric.
func (s *Service) GetComputeDiskMetric(ctx context.Context, cc model.ClientConfig, instanceID string, metricName string, tr model.TimeRange, period int32, stat model.Statistic) (*cloudwatch.GetMetricStatisticsOutput, error) {
	kind, err := model.LookupMetric(model.ComputeDiskMetrics, metricName)
	if err != nil {
		return nil, err
	}
	return s.single(ctx, cc, model.NewDescriptor(kind, metricName, instanceID), model.QueryRequest{
		Range:     tr,
		Period:    period,
		Statistic: stat,
	})
}

func (s *Service) single(ctx context.Context, cc model.ClientConfig, desc model.MetricDescriptor, req model.QueryRequest) (*cloudwatch.GetMetricStatisticsOutput, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if desc.DimensionValue == "" {
		return nil, model.ErrMissingInstance
	}
	input, err := query.BuildSingle(desc, req)
	if err != nil {
		return nil, err
	}
	d, err := s.dispatcher(ctx, cc)
	if err != nil {
		return nil, err
	}
	return d.ExecuteSingle(ctx, input)
}

// GetComputeInstancesCPUMetric returns CPUUtilization of instanceIDs, or of
// every EC2 instance in the region when instanceIDs is empty. It returns a
// nil result and a nil error when no instance resolves.
func (s *Service) GetComputeInstancesCPUMetric(ctx context.Context, cc model.ClientConfig, instanceIDs []string, tr model.TimeRange, period int32, stat model.Statistic) (*BatchResult, error) {
	return s.batch(ctx, cc, model.Compute, query.CPUQueryIDPrefix, model.ComputeCPUMetric, instanceIDs, model.QueryRequest{
		Range:     tr,
		Period:    period,
		Statistic: stat,
	})
}

// GetManagedDBInstancesMetric returns metricName of instanceIDs, or of every
// RDS instance in the region when instanceIDs is empty. It returns a nil
// result and a nil error when no instance resolves.
func (s *Service) GetManagedDBInstancesMetric(ctx context.Context, cc model.ClientConfig, metricName string, instanceIDs []string, tr model.TimeRange, period int32, stat model.Statistic) (*BatchResult, error) {
	if _, err := model.LookupMetric(model.ManagedDatabaseMetrics, metricName); err != nil {
		return nil, err
	}
	return s.batch(ctx, cc, model.ManagedDatabase, model.ManagedDatabase.Spec().QueryIDPrefix, metricName, instanceIDs, model.QueryRequest{
		Range:     tr,
		Period:    period,
		Statistic: stat,
	})
}

func (s *Service) batch(ctx context.Context, cc model.ClientConfig, kind model.ServiceKind, prefix string, metricName string, instanceIDs []string, req model.QueryRequest) (*BatchResult, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lister, err := s.lister(ctx, cc, kind)
	if err != nil {
		return nil, err
	}
	ids, err := discovery.ResolveInstanceIDs(ctx, instanceIDs, lister)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		slog.Info("no instances to query", "service", kind.String(), "region", cc.Region, "metric", metricName)
		return nil, nil
	}

	batch, err := query.BuildBatchWithPrefix(kind, prefix, metricName, req, ids)
	if err != nil {
		return nil, err
	}
	d, err := s.dispatcher(ctx, cc)
	if err != nil {
		return nil, err
	}
	output, err := d.Execute(ctx, batch)
	if err != nil {
		return nil, err
	}
	return &BatchResult{
		Batch:  batch,
		Output: output,
	}, nil
}
