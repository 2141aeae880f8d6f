package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Time sources for CSV input.
const (
	TimeSourceColumn   = "column"
	TimeSourceRowIndex = "row_index"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	InputPath      string
	TimeSource     string
	SampleInterval time.Duration

	WindowDuration time.Duration
	// TargetStart and TargetEnd are nil when unset; zero is a valid bound.
	TargetStart *time.Duration
	TargetEnd   *time.Duration
	TargetStep  time.Duration

	MinAirspeed          float64
	MaxAirspeed          float64
	SolverMaxIterations  int
	SolverMaxEvaluations int
	Workers              int
	WarmStart            bool
	FullWindowsOnly      bool

	BatchSize       int
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Sinks. Each is disabled when left empty or false.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	SQLitePath   string
	GeoJSONPath  string
	ChartDir     string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		InputPath:  os.Getenv("INPUT_PATH"),
		TimeSource: sharedcfg.EnvOrDefault("TIME_SOURCE", TimeSourceColumn),
		BatchSize:  batchSize,
		HTTPAddr:   sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:   sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:  sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),

		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "wind-observations"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		GeoJSONPath:  os.Getenv("GEOJSON_PATH"),
		ChartDir:     os.Getenv("CHART_DIR"),

		WarmStart:       os.Getenv("WARM_START") == "true",
		FullWindowsOnly: os.Getenv("FULL_WINDOWS_ONLY") == "true",
	}

	durations := []struct {
		name     string
		def      string
		dst      *time.Duration
		positive bool
	}{
		{"SAMPLE_INTERVAL", "1s", &cfg.SampleInterval, true},
		{"WINDOW_DURATION", "60s", &cfg.WindowDuration, true},
		{"TARGET_STEP", "5s", &cfg.TargetStep, true},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(sharedcfg.EnvOrDefault(d.name, d.def))
		if err != nil || v < 0 || (d.positive && v == 0) {
			return nil, fmt.Errorf("invalid %s", d.name)
		}
		*d.dst = v
	}
	if cfg.TargetStart, err = parseOptionalDuration("TARGET_START"); err != nil {
		return nil, err
	}
	if cfg.TargetEnd, err = parseOptionalDuration("TARGET_END"); err != nil {
		return nil, err
	}

	if cfg.MinAirspeed, err = parseFloat("MIN_AIRSPEED", 5); err != nil {
		return nil, err
	}
	if cfg.MaxAirspeed, err = parseFloat("MAX_AIRSPEED", 25); err != nil {
		return nil, err
	}
	if cfg.SolverMaxIterations, err = parsePositiveInt("SOLVER_MAX_ITERATIONS", 2000); err != nil {
		return nil, err
	}
	if cfg.SolverMaxEvaluations, err = parsePositiveInt("SOLVER_MAX_EVALUATIONS", 4000); err != nil {
		return nil, err
	}
	if cfg.Workers, err = parsePositiveInt("WORKERS", 1); err != nil {
		return nil, err
	}

	if cfg.TimeSource != TimeSourceColumn && cfg.TimeSource != TimeSourceRowIndex {
		return nil, fmt.Errorf("TIME_SOURCE must be %q or %q", TimeSourceColumn, TimeSourceRowIndex)
	}
	if cfg.MinAirspeed > cfg.MaxAirspeed {
		return nil, errors.New("MIN_AIRSPEED must not exceed MAX_AIRSPEED")
	}
	if cfg.TargetStart != nil && cfg.TargetEnd != nil && *cfg.TargetEnd < *cfg.TargetStart {
		return nil, errors.New("TARGET_END must not precede TARGET_START")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required")
	}

	return cfg, nil
}

func parseFloat(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parseOptionalDuration(name string) (*time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return nil, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return &v, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}
