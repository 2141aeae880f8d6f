package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/observability"
)

// SampleSource reads the complete sample sequence for a run.
type SampleSource interface {
	// Name identifies the source in run metadata, e.g. a file path.
	Name() string
	LoadSamples(ctx context.Context) ([]domain.SensorSample, error)
}

// Estimator turns samples into observations at the given target times.
type Estimator interface {
	Estimate(ctx context.Context, samples []domain.SensorSample, targets []time.Duration) (Estimate, error)
	Options() EstimatorOptions
}

// BatchLoader writes a batch of observations belonging to a run.
type BatchLoader interface {
	LoadBatch(ctx context.Context, run domain.Run, observations []domain.Observation) error
}

// Result is the outcome of one pipeline run. Samples is the full input
// sequence the run was estimated from.
type Result struct {
	Run      domain.Run
	Samples  []domain.SensorSample
	Targets  int
	Estimate Estimate
	Summary  Summary
}

// maxLoadAttempts bounds retries of a failed batch write.
const maxLoadAttempts = 3

// Pipeline orchestrates the load-estimate-store run.
type Pipeline struct {
	source    SampleSource
	estimator Estimator
	loader    BatchLoader
	schedule  ScheduleConfig
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int

	ready  atomic.Bool
	mu     sync.RWMutex
	latest Result
}

// New creates a Pipeline. loader may be nil when no sink is configured.
func New(src SampleSource, est Estimator, loader BatchLoader, schedule ScheduleConfig, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Pipeline{
		source:    src,
		estimator: est,
		loader:    loader,
		schedule:  schedule,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once a run has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no estimation run has completed yet")
	}
	return nil
}

// Latest returns the most recent completed run.
func (p *Pipeline) Latest() (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.ready.Load()
}

// Run loads all samples, estimates wind at every scheduled target time and
// writes the observations to the loader in batches.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	start := domain.Now()

	samples, err := p.source.LoadSamples(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load samples: %w", err)
	}

	opts := p.estimator.Options()
	targets, err := p.schedule.Targets(samples, opts.Window)
	if err != nil {
		return Result{}, err
	}

	run := domain.NewRun(p.source.Name(), opts.Window, opts.Solver.MinAirspeed, opts.Solver.MaxAirspeed)
	p.logger.Info("run started",
		"run_id", run.ID,
		"source", run.Source,
		"samples", len(samples),
		"targets", len(targets),
		"window", opts.Window,
		"workers", opts.Workers,
	)

	est, err := p.estimator.Estimate(ctx, samples, targets)
	if err != nil {
		return Result{}, fmt.Errorf("estimate: %w", err)
	}

	if err := p.store(ctx, run, est.Observations); err != nil {
		return Result{}, err
	}

	res := Result{
		Run:      run,
		Samples:  samples,
		Targets:  len(targets),
		Estimate: est,
		Summary:  Summarize(est.Observations),
	}
	p.mu.Lock()
	p.latest = res
	p.mu.Unlock()
	p.ready.Store(true)

	elapsed := domain.Now().Sub(start)
	p.metrics.RunDuration.Observe(elapsed.Seconds())
	p.logger.Info("run complete",
		"run_id", run.ID,
		"observations", len(est.Observations),
		"skipped", est.Skipped,
		"non_converged", est.NonConverged,
		"mean_wind_speed", res.Summary.MeanWindSpeed,
		"mean_wind_direction", res.Summary.MeanWindDirection,
		"duration", elapsed,
	)
	return res, nil
}

// store writes observations in batches of batchSize.
func (p *Pipeline) store(ctx context.Context, run domain.Run, observations []domain.Observation) error {
	if p.loader == nil {
		return nil
	}
	for lo := 0; lo < len(observations); lo += p.batchSize {
		hi := min(lo+p.batchSize, len(observations))
		if err := p.loadWithRetry(ctx, run, observations[lo:hi]); err != nil {
			return fmt.Errorf("store observations %d-%d: %w", lo, hi-1, err)
		}
		p.metrics.ObservationsLoaded.Add(float64(hi - lo))
	}
	return nil
}

// loadWithRetry retries a failed batch with exponential backoff: start at
// 200ms, double each retry, cap at 5s.
func (p *Pipeline) loadWithRetry(ctx context.Context, run domain.Run, batch []domain.Observation) error {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var err error
	for attempt := 1; attempt <= maxLoadAttempts; attempt++ {
		if err = p.loader.LoadBatch(ctx, run, batch); err == nil {
			return nil
		}
		p.metrics.ObservationLoadErrs.Inc()
		p.logger.Error("load batch failed", "error", err, "attempt", attempt, "batch_size", len(batch))
		if attempt == maxLoadAttempts || !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// MultiLoader writes each batch to every loader in order and joins their errors.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, run domain.Run, observations []domain.Observation) error {
	var errs []error
	for _, l := range m {
		if err := l.LoadBatch(ctx, run, observations); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
