package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/mtanda/cloud-instance-metrics/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

func newMux(svc *telemetry.Service, reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	counter := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of requests",
	}, []string{"code", "method"})
	duration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "A histogram of latencies for requests.",
			Buckets: prometheus.ExponentialBuckets(0.0625, 2, 10),
		}, []string{"handler", "method"})
	responseSize := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "A histogram of response sizes for requests.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		}, []string{"handler"})
	instrument := func(path string, h http.HandlerFunc) {
		mux.Handle(path, promhttp.InstrumentHandlerDuration(
			duration.MustCurryWith(prometheus.Labels{"handler": path}),
			promhttp.InstrumentHandlerCounter(
				counter,
				promhttp.InstrumentHandlerResponseSize(
					responseSize.MustCurryWith(prometheus.Labels{"handler": path}),
					h,
				),
			),
		))
	}

	a := &api{svc: svc}
	instrument("/api/v1/ec2/cpu", a.computeCPU)
	instrument("/api/v1/ec2/instances/cpu", a.computeInstancesCPU)
	instrument("/api/v1/ec2/memory", a.computeMemory)
	instrument("/api/v1/ec2/disk", a.computeDisk)
	instrument("/api/v1/rds/instances", a.managedDBInstances)
	return mux
}

func main() {
	var listenAddress string
	flag.StringVar(&listenAddress, "web.listen-address", "0.0.0.0:8080", "Address to listen")
	var maxTPS float64
	flag.Float64Var(&maxTPS, "api.max-tps", 0, "Max CloudWatch API calls per second, 0 for unlimited")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var limiter *rate.Limiter
	if maxTPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxTPS), 1)
	}
	svc := telemetry.New(telemetry.AWSClients{}, limiter, reg)

	slog.Info("Starting server", "address", listenAddress)
	err := http.ListenAndServe(listenAddress, newMux(svc, reg))
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
