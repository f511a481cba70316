package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/mtanda/cloud-instance-metrics/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

type CloudWatchAPI interface {
	cloudwatch.GetMetricDataAPIClient
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// Metrics are registered once per registry and shared by every Dispatcher.
type Metrics struct {
	apiCallsTotal    *prometheus.CounterVec
	apiCallDurations *prometheus.HistogramVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	apiCallsTotal := promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_cloudwatch_api_calls_total",
		Help: "Total number of CloudWatch API calls",
	}, []string{"api", "namespace", "status"})
	apiCallDurations := promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatcher_cloudwatch_api_call_duration_seconds",
		Help:    "Duration of CloudWatch API call in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 20),
	}, []string{"api"})
	return &Metrics{
		apiCallsTotal:    apiCallsTotal,
		apiCallDurations: apiCallDurations,
	}
}

// Dispatcher sends built queries to CloudWatch as they are: no retry, no
// pagination and no aggregation across instances.
type Dispatcher struct {
	cwClient CloudWatchAPI
	limiter  *rate.Limiter
	metrics  *Metrics
}

// New returns a Dispatcher. limiter and metrics may be nil.
func New(client CloudWatchAPI, limiter *rate.Limiter, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		cwClient: client,
		limiter:  limiter,
		metrics:  metrics,
	}
}

func (d *Dispatcher) Execute(ctx context.Context, batch model.Batch) (*cloudwatch.GetMetricDataOutput, error) {
	input, err := query.MetricDataInput(batch)
	if err != nil {
		return nil, err
	}
	namespace := batch.Queries[0].Descriptor.Namespace

	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	now := time.Now()
	output, err := d.cwClient.GetMetricData(ctx, input)
	d.observe("GetMetricData", namespace, now, err)
	if err != nil {
		return nil, fmt.Errorf("GetMetricData failed: %w", err)
	}
	slog.Debug("dispatched batch", "namespace", namespace, "queries", batch.Len(), "results", len(output.MetricDataResults))
	return output, nil
}

func (d *Dispatcher) ExecuteSingle(ctx context.Context, input *cloudwatch.GetMetricStatisticsInput) (*cloudwatch.GetMetricStatisticsOutput, error) {
	namespace := aws.ToString(input.Namespace)

	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	now := time.Now()
	output, err := d.cwClient.GetMetricStatistics(ctx, input)
	d.observe("GetMetricStatistics", namespace, now, err)
	if err != nil {
		return nil, fmt.Errorf("GetMetricStatistics failed: %w", err)
	}
	return output, nil
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

func (d *Dispatcher) observe(api string, namespace string, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.apiCallsTotal.WithLabelValues(api, namespace, status).Inc()
	d.metrics.apiCallDurations.WithLabelValues(api).Observe(time.Since(start).Seconds())
}

// Correlate maps every result of output back to the query, and so the
// instance, it was built from. Results are matched by query id, never by
// position. Results with an id the batch does not know are dropped.
func Correlate(batch model.Batch, output *cloudwatch.GetMetricDataOutput) []model.Series {
	if output == nil {
		return nil
	}
	byID := make(map[string]model.Query, batch.Len())
	for _, q := range batch.Queries {
		byID[q.ID] = q
	}

	series := make([]model.Series, 0, len(output.MetricDataResults))
	for _, r := range output.MetricDataResults {
		q, ok := byID[aws.ToString(r.Id)]
		if !ok {
			slog.Warn("unknown query id in result", "id", aws.ToString(r.Id))
			continue
		}
		s := model.Series{
			QueryID:    q.ID,
			Descriptor: q.Descriptor,
			Statistic:  q.Request.Statistic,
			Label:      aws.ToString(r.Label),
			Status:     string(r.StatusCode),
			Datapoints: make([]model.Datapoint, 0, len(r.Values)),
		}
		for i := range r.Values {
			if i >= len(r.Timestamps) {
				break
			}
			s.Datapoints = append(s.Datapoints, model.Datapoint{
				Timestamp: r.Timestamps[i],
				Value:     r.Values[i],
			})
		}
		series = append(series, s)
	}
	return series
}

// StatisticsSeries converts a GetMetricStatistics output for desc into a
// Series, picking the requested statistic from every datapoint.
func StatisticsSeries(desc model.MetricDescriptor, stat model.Statistic, output *cloudwatch.GetMetricStatisticsOutput) model.Series {
	s := model.Series{
		Descriptor: desc,
		Statistic:  stat,
		Datapoints: make([]model.Datapoint, 0),
	}
	if output == nil {
		return s
	}
	s.Label = aws.ToString(output.Label)
	for _, dp := range output.Datapoints {
		var v *float64
		switch stat {
		case model.Average:
			v = dp.Average
		case model.Minimum:
			v = dp.Minimum
		case model.Maximum:
			v = dp.Maximum
		case model.Sum:
			v = dp.Sum
		case model.SampleCount:
			v = dp.SampleCount
		}
		if v == nil || dp.Timestamp == nil {
			continue
		}
		s.Datapoints = append(s.Datapoints, model.Datapoint{
			Timestamp: *dp.Timestamp,
			Value:     *v,
		})
	}
	// GetMetricStatistics does not sort datapoints
	sort.Slice(s.Datapoints, func(i, j int) bool {
		return s.Datapoints[i].Timestamp.Before(s.Datapoints[j].Timestamp)
	})
	return s
}
