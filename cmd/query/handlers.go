package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/mtanda/cloud-instance-metrics/internal/dispatch"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/mtanda/cloud-instance-metrics/internal/telemetry"
)

const defaultPeriod = 300

type seriesData struct {
	Labels     map[string]string `json:"labels"`
	Status     string            `json:"status,omitempty"`
	Datapoints [][2]float64      `json:"datapoints"`
}

type api struct {
	svc *telemetry.Service
}

// requestParams are the parameters every endpoint shares.
type requestParams struct {
	cc        model.ClientConfig
	tr        model.TimeRange
	period    int32
	statistic model.Statistic
}

func parseTime(param string) (time.Time, error) {
	t, err := time.ParseInLocation(time.RFC3339, param, time.UTC)
	if err == nil {
		return t, nil
	}
	unixTime, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unixTime, 0).UTC(), nil
}

func parseParams(query url.Values) (requestParams, error) {
	var p requestParams
	p.cc = model.ClientConfig{Region: query.Get("region")}

	start, err := parseTime(query.Get("start"))
	if err != nil {
		return p, fmt.Errorf("failed to parse start timestamp: %w", err)
	}
	end, err := parseTime(query.Get("end"))
	if err != nil {
		return p, fmt.Errorf("failed to parse end timestamp: %w", err)
	}
	p.tr = model.TimeRange{Start: start, End: end}

	p.period = defaultPeriod
	if v := query.Get("period"); v != "" {
		period, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return p, fmt.Errorf("failed to parse period: %w", err)
		}
		p.period = int32(period)
	}

	p.statistic = model.Average
	if v := query.Get("statistic"); v != "" {
		p.statistic, err = model.ParseStatistic(v)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func isConfigurationError(err error) bool {
	for _, target := range []error{
		model.ErrMissingRegion,
		model.ErrPartialCredentials,
		model.ErrMissingInstance,
		model.ErrInvalidPeriod,
		model.ErrInvalidStatistic,
		model.ErrInvalidMetric,
		model.ErrInvalidUnit,
		model.ErrInvalidTimeRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeError(w http.ResponseWriter, err error) {
	if isConfigurationError(err) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Error("failed to query metrics", "error", err)
	http.Error(w, "failed to query metrics: "+err.Error(), http.StatusBadGateway)
}

func writeSeries(w http.ResponseWriter, series []model.Series) {
	data := make([]seriesData, 0, len(series))
	for _, s := range series {
		d := seriesData{
			Labels:     s.Labels(),
			Status:     s.Status,
			Datapoints: make([][2]float64, 0, len(s.Datapoints)),
		}
		for _, dp := range s.Datapoints {
			d.Datapoints = append(d.Datapoints, [2]float64{float64(dp.Timestamp.Unix()), dp.Value})
		}
		data = append(data, d)
	}

	response := map[string]interface{}{
		"status": "success",
		"data":   data,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// writeBatch writes a batched result; a nil result means no instance resolved.
func writeBatch(w http.ResponseWriter, result *telemetry.BatchResult) {
	if result == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "no_data",
			"data":   []seriesData{},
		})
		return
	}
	writeSeries(w, result.Series())
}

func writeSingle(w http.ResponseWriter, desc model.MetricDescriptor, stat model.Statistic, output *cloudwatch.GetMetricStatisticsOutput) {
	writeSeries(w, []model.Series{dispatch.StatisticsSeries(desc, stat, output)})
}

func (a *api) computeCPU(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p, err := parseParams(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	instanceID := query.Get("instance")
	output, err := a.svc.GetComputeCPUMetric(r.Context(), p.cc, instanceID, p.tr, p.period, p.statistic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSingle(w, model.NewDescriptor(model.Compute, model.ComputeCPUMetric, instanceID), p.statistic, output)
}

func (a *api) computeInstancesCPU(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p, err := parseParams(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := a.svc.GetComputeInstancesCPUMetric(r.Context(), p.cc, query["instance"], p.tr, p.period, p.statistic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBatch(w, result)
}

func (a *api) managedDBInstances(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p, err := parseParams(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := a.svc.GetManagedDBInstancesMetric(r.Context(), p.cc, query.Get("metric"), query["instance"], p.tr, p.period, p.statistic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBatch(w, result)
}

func (a *api) computeMemory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p, err := parseParams(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	instanceID := query.Get("instance")
	metricName := query.Get("metric")
	output, err := a.svc.GetComputeMemoryMetric(r.Context(), p.cc, instanceID, metricName, p.tr, p.period, p.statistic, types.StandardUnit(query.Get("unit")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSingle(w, model.NewDescriptor(model.ComputeMemoryMetrics[metricName], metricName, instanceID), p.statistic, output)
}

func (a *api) computeDisk(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	p, err := parseParams(query)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	instanceID := query.Get("instance")
	metricName := query.Get("metric")
	output, err := a.svc.GetComputeDiskMetric(r.Context(), p.cc, instanceID, metricName, p.tr, p.period, p.statistic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSingle(w, model.NewDescriptor(model.ComputeDiskMetrics[metricName], metricName, instanceID), p.statistic, output)
}
