// Command windest estimates wind along a recorded flight.
//
// It loads a CSV flight log, fits wind and airspeed over a trailing window
// at each scheduled target time, and writes the observations to the
// configured sinks (Kafka, SQLite, GeoJSON, PNG charts). With -serve it keeps
// serving health, metrics, and the results over HTTP until interrupted.
//
// Usage:
//
//	go run ./cmd/windest -in flight.csv
//	GEOJSON_PATH=wind.geojson CHART_DIR=charts go run ./cmd/windest -in flight.csv -serve
//
// Settings are read from the environment, optionally seeded from a .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wind-estimation-service/internal/adapter/chart"
	"github.com/couchcryptid/wind-estimation-service/internal/adapter/csvsource"
	"github.com/couchcryptid/wind-estimation-service/internal/adapter/geojson"
	httpadapter "github.com/couchcryptid/wind-estimation-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wind-estimation-service/internal/adapter/kafka"
	"github.com/couchcryptid/wind-estimation-service/internal/adapter/sqlite"
	"github.com/couchcryptid/wind-estimation-service/internal/config"
	"github.com/couchcryptid/wind-estimation-service/internal/observability"
	"github.com/couchcryptid/wind-estimation-service/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	in := flag.String("in", "", "CSV flight log (overrides INPUT_PATH)")
	serve := flag.Bool("serve", false, "keep serving HTTP after the run until interrupted")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *in != "" {
		cfg.InputPath = *in
	}
	if cfg.InputPath == "" {
		slog.Error("no input: set INPUT_PATH or pass -in")
		os.Exit(2)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, *serve, logger); err != nil {
		logger.Error("windest failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, serve bool, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	src := csvsource.New(cfg.InputPath, sourceOptions(cfg), logger, metrics)

	est, err := pipeline.NewWindEstimator(estimatorOptions(cfg), logger, metrics)
	if err != nil {
		return err
	}

	var (
		loaders pipeline.MultiLoader
		store   *sqlite.Store
	)
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}
	if cfg.SQLitePath != "" {
		store, err = sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("sqlite close error", "error", err)
			}
		}()
		loaders = append(loaders, store)
	}
	var loader pipeline.BatchLoader
	if len(loaders) > 0 {
		loader = loaders
	}

	schedule := scheduleConfig(cfg)
	p := pipeline.New(src, est, loader, schedule, logger, metrics, cfg.BatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if serve {
		var runs httpadapter.RunStore
		if store != nil {
			runs = store
		}
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, p, runs, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
				stop()
			}
		}()
	}

	res, err := p.Run(ctx)
	if err != nil {
		shutdown(srv, cfg, logger)
		return err
	}

	if cfg.GeoJSONPath != "" {
		if err := geojson.WriteFile(cfg.GeoJSONPath, res.Run, res.Estimate.Observations); err != nil {
			logger.Error("geojson export failed", "error", err)
		} else {
			logger.Info("geojson written", "path", cfg.GeoJSONPath)
		}
	}
	if cfg.ChartDir != "" {
		if files, err := chart.Render(cfg.ChartDir, res.Samples, res.Estimate.Observations); err != nil {
			logger.Error("chart rendering failed", "error", err)
		} else {
			logger.Info("charts written", "dir", cfg.ChartDir, "wind", files.Wind, "circle", files.Circle)
		}
	}

	if srv == nil {
		return nil
	}
	<-ctx.Done()
	logger.Info("shutting down")
	shutdown(srv, cfg, logger)
	logger.Info("shutdown complete")
	return nil
}

func shutdown(srv *httpadapter.Server, cfg *config.Config, logger *slog.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func sourceOptions(cfg *config.Config) csvsource.Options {
	return csvsource.Options{
		RowIndexTime: cfg.TimeSource == config.TimeSourceRowIndex,
		Interval:     cfg.SampleInterval,
	}
}

func scheduleConfig(cfg *config.Config) pipeline.ScheduleConfig {
	return pipeline.ScheduleConfig{Start: cfg.TargetStart, End: cfg.TargetEnd, Step: cfg.TargetStep}
}

func estimatorOptions(cfg *config.Config) pipeline.EstimatorOptions {
	opts := pipeline.DefaultEstimatorOptions()
	opts.Window = cfg.WindowDuration
	opts.Solver.MinAirspeed = cfg.MinAirspeed
	opts.Solver.MaxAirspeed = cfg.MaxAirspeed
	opts.Solver.MaxIterations = cfg.SolverMaxIterations
	opts.Solver.MaxEvaluations = cfg.SolverMaxEvaluations
	opts.Workers = cfg.Workers
	opts.WarmStart = cfg.WarmStart
	opts.FullWindowsOnly = cfg.FullWindowsOnly
	return opts
}
