package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/mtanda/cloud-instance-metrics/internal/dispatch"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/mtanda/cloud-instance-metrics/internal/telemetry"
)

type seriesRecorder interface {
	RecordSeries(ctx context.Context, region string, series model.Series) error
}

type Fetcher struct {
	svc      *telemetry.Service
	recorder seriesRecorder
	now      func() time.Time
}

func newFetcher(svc *telemetry.Service, recorder seriesRecorder) *Fetcher {
	return &Fetcher{
		svc:      svc,
		recorder: recorder,
		now:      time.Now,
	}
}

// fetch runs one target. Targets for ec2 and rds are batched over the given
// or discovered instances; cwagent targets query each listed instance.
func (f *Fetcher) fetch(ctx context.Context, target model.Target) ([]model.Series, error) {
	kind, err := model.ParseServiceKind(target.Service)
	if err != nil {
		return nil, err
	}
	stat, err := model.ParseStatistic(target.Statistic)
	if err != nil {
		return nil, err
	}
	end := f.now().UTC().Truncate(time.Minute)
	tr := model.TimeRange{Start: end.Add(-target.Lookback), End: end}
	cc := model.ClientConfig{Region: target.Region}

	var series []model.Series
	switch kind {
	case model.Compute:
		var result *telemetry.BatchResult
		if target.Metric == "" || target.Metric == model.ComputeCPUMetric {
			result, err = f.svc.GetComputeInstancesCPUMetric(ctx, cc, target.Instances, tr, target.Period, stat)
		} else {
			series, err = f.single(ctx, cc, target, tr, stat)
		}
		if err != nil {
			return nil, err
		}
		if result != nil {
			series = result.Series()
		}
	case model.ManagedDatabase:
		result, err := f.svc.GetManagedDBInstancesMetric(ctx, cc, target.Metric, target.Instances, tr, target.Period, stat)
		if err != nil {
			return nil, err
		}
		series = result.Series()
	case model.ComputeAgent:
		series, err = f.single(ctx, cc, target, tr, stat)
		if err != nil {
			return nil, err
		}
	}

	if series == nil {
		slog.Info("no data", "region", target.Region, "service", target.Service, "metric", target.Metric)
		return nil, nil
	}
	if f.recorder != nil {
		for _, s := range series {
			if err := f.recorder.RecordSeries(ctx, target.Region, s); err != nil {
				return series, err
			}
		}
	}
	return series, nil
}

// single handles per-instance memory and disk targets.
func (f *Fetcher) single(ctx context.Context, cc model.ClientConfig, target model.Target, tr model.TimeRange, stat model.Statistic) ([]model.Series, error) {
	if len(target.Instances) == 0 {
		return nil, fmt.Errorf("%w: %s needs explicit instances", model.ErrMissingInstance, target.Metric)
	}

	series := make([]model.Series, 0, len(target.Instances))
	for _, id := range target.Instances {
		if _, ok := model.ComputeMemoryMetrics[target.Metric]; ok {
			output, err := f.svc.GetComputeMemoryMetric(ctx, cc, id, target.Metric, tr, target.Period, stat, types.StandardUnit(target.Unit))
			if err != nil {
				return nil, err
			}
			series = append(series, dispatch.StatisticsSeries(model.NewDescriptor(model.ComputeMemoryMetrics[target.Metric], target.Metric, id), stat, output))
			continue
		}
		kind, err := model.LookupMetric(model.ComputeDiskMetrics, target.Metric)
		if err != nil {
			return nil, err
		}
		output, err := f.svc.GetComputeDiskMetric(ctx, cc, id, target.Metric, tr, target.Period, stat)
		if err != nil {
			return nil, err
		}
		series = append(series, dispatch.StatisticsSeries(model.NewDescriptor(kind, target.Metric, id), stat, output))
	}
	return series, nil
}
