package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtanda/cloud-instance-metrics/internal/model"
	"github.com/mtanda/cloud-instance-metrics/internal/store"
	"github.com/mtanda/cloud-instance-metrics/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func openStore(dir string) (*store.Store, error) {
	if stat, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	} else if err != nil {
		return nil, err
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("path exists but is not a directory: %s", dir)
	}
	return store.Open(dir)
}

func newLimiter(maxTPS float64) *rate.Limiter {
	if maxTPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(maxTPS), 1)
}

func run(configFile string, storeDir string, maxTPS float64) error {
	cfg, err := model.LoadConfig(configFile, model.DefaultRegion)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var recorder seriesRecorder
	var st *store.Store
	if storeDir != "" {
		st, err = openStore(storeDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
		recorder = st
	}

	svc := telemetry.New(telemetry.AWSClients{}, newLimiter(maxTPS), prometheus.NewRegistry())
	fetcher := newFetcher(svc, recorder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errgrp, ctx := errgroup.WithContext(ctx)
	for _, target := range cfg.Targets {
		target := target
		errgrp.Go(func() error {
			series, err := fetcher.fetch(ctx, target)
			if err != nil {
				slog.Error("failed to fetch target", "target", target, "error", err)
				return err
			}
			for _, s := range series {
				slog.Info("series", "region", target.Region, "labels", s.Labels(), "status", s.Status, "datapoints", len(s.Datapoints))
			}
			return nil
		})
	}
	if err := errgrp.Wait(); err != nil {
		return err
	}
	if st != nil {
		if err := st.WalCheckpoint(context.Background()); err != nil {
			slog.Error("failed to WAL checkpoint", "error", err)
		}
	}
	slog.Info("fetch completed", "targets", len(cfg.Targets))
	return nil
}

func main() {
	var configFile string
	flag.StringVar(&configFile, "config.file", "config.yaml", "Path to the config file")
	var storeDir string
	flag.StringVar(&storeDir, "store.dir", "", "Path to the datapoint store directory, empty to disable")
	var maxTPS float64
	flag.Float64Var(&maxTPS, "api.max-tps", 0, "Max CloudWatch API calls per second, 0 for unlimited")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(configFile, storeDir, maxTPS); err != nil {
		logger.Error("fetch failed", "error", err)
		os.Exit(1)
	}
}
