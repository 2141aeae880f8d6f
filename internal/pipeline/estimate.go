package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/observability"
	"github.com/couchcryptid/wind-estimation-service/internal/solver"
	"golang.org/x/sync/errgroup"
)

// ErrTargetsNotIncreasing is returned when target times are not strictly increasing.
var ErrTargetsNotIncreasing = errors.New("target times are not strictly increasing")

// EstimatorOptions configures a WindEstimator.
type EstimatorOptions struct {
	// Window is the trailing duration of samples fitted for each target time.
	Window time.Duration
	Solver solver.Settings

	// Workers is the number of windows solved concurrently. Values below 2
	// solve sequentially.
	Workers int

	// WarmStart seeds each solve with the previous converged solution
	// instead of solver.Seed. Consecutive windows then depend on each other,
	// so warm-started runs are always sequential.
	WarmStart bool

	// FullWindowsOnly skips target times whose window would start before
	// the first sample.
	FullWindowsOnly bool
}

// DefaultEstimatorOptions returns a 60 second window with default solver settings.
func DefaultEstimatorOptions() EstimatorOptions {
	return EstimatorOptions{
		Window:  60 * time.Second,
		Solver:  solver.DefaultSettings(),
		Workers: 1,
	}
}

// Estimate is the outcome of estimating wind over a list of target times.
type Estimate struct {
	// Observations are ordered by time, one per non-skipped target.
	Observations []domain.Observation
	// Skipped counts target times whose window held no samples.
	Skipped int
	// NonConverged counts observations whose solve hit a limit.
	NonConverged int
}

// WindEstimator builds observations by selecting a window for each target
// time and fitting wind and airspeed to it.
type WindEstimator struct {
	opts    EstimatorOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWindEstimator validates opts and creates a WindEstimator.
func NewWindEstimator(opts EstimatorOptions, logger *slog.Logger, metrics *observability.Metrics) (*WindEstimator, error) {
	if opts.Window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", opts.Window)
	}
	if err := opts.Solver.Validate(); err != nil {
		return nil, fmt.Errorf("solver settings: %w", err)
	}
	return &WindEstimator{opts: opts, logger: logger, metrics: metrics}, nil
}

// EstimateOption adjusts the options EstimateWind runs with.
type EstimateOption func(*EstimatorOptions)

// WithFullWindowsOnly skips target times with less than a full window of
// history before them.
func WithFullWindowsOnly() EstimateOption {
	return func(o *EstimatorOptions) { o.FullWindowsOnly = true }
}

// EstimateWind fits wind and airspeed for each target time with default
// solver limits, sequentially. Windows that start before the first sample
// are solved from whatever samples they hold unless WithFullWindowsOnly is
// given.
func EstimateWind(samples []domain.SensorSample, targets []time.Duration, window time.Duration, minAirspeed, maxAirspeed float64, options ...EstimateOption) (Estimate, error) {
	opts := DefaultEstimatorOptions()
	opts.Window = window
	opts.Solver.MinAirspeed = minAirspeed
	opts.Solver.MaxAirspeed = maxAirspeed
	for _, o := range options {
		o(&opts)
	}

	e, err := NewWindEstimator(opts, observability.DiscardLogger(), observability.NewUnregisteredMetrics())
	if err != nil {
		return Estimate{}, err
	}
	return e.Estimate(context.Background(), samples, targets)
}

// Options returns the estimator's configuration.
func (e *WindEstimator) Options() EstimatorOptions { return e.opts }

// Estimate produces one observation per target time, in target order.
// Targets whose window is empty are skipped and counted. samples must be
// sorted by time and targets strictly increasing.
func (e *WindEstimator) Estimate(ctx context.Context, samples []domain.SensorSample, targets []time.Duration) (Estimate, error) {
	if err := domain.ValidateOrder(samples); err != nil {
		return Estimate{}, err
	}
	if err := checkTargets(targets); err != nil {
		return Estimate{}, err
	}

	velocities := domain.ProjectVelocities(samples)
	slots := make([]slot, len(targets))

	var err error
	if e.opts.WarmStart || e.opts.Workers < 2 {
		err = e.solveSequential(ctx, samples, velocities, targets, slots)
	} else {
		err = e.solveConcurrent(ctx, samples, velocities, targets, slots)
	}
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{Observations: make([]domain.Observation, 0, len(targets))}
	for _, s := range slots {
		if !s.ok {
			est.Skipped++
			continue
		}
		if !s.obs.Converged {
			est.NonConverged++
		}
		est.Observations = append(est.Observations, s.obs)
	}
	return est, nil
}

// slot holds the result for one target time; ok is false when skipped.
type slot struct {
	obs domain.Observation
	ok  bool
}

func (e *WindEstimator) solveSequential(ctx context.Context, samples []domain.SensorSample, velocities []domain.Velocity, targets []time.Duration, slots []slot) error {
	seed := solver.Seed
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		obs, ok, err := e.solveAt(samples, velocities, t, seed)
		if err != nil {
			return err
		}
		slots[i] = slot{obs: obs, ok: ok}
		if e.opts.WarmStart && ok && obs.Converged {
			seed = obs.Solution
		}
	}
	return nil
}

// solveConcurrent fans target times out over a bounded worker group. Each
// worker writes only its own slot, so order is kept without locking.
func (e *WindEstimator) solveConcurrent(ctx context.Context, samples []domain.SensorSample, velocities []domain.Velocity, targets []time.Duration, slots []slot) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			obs, ok, err := e.solveAt(samples, velocities, t, solver.Seed)
			if err != nil {
				return err
			}
			slots[i] = slot{obs: obs, ok: ok}
			return nil
		})
	}
	return g.Wait()
}

func (e *WindEstimator) solveAt(samples []domain.SensorSample, velocities []domain.Velocity, t time.Duration, seed domain.WindSolution) (domain.Observation, bool, error) {
	if e.opts.FullWindowsOnly && len(samples) > 0 && t-e.opts.Window < samples[0].Time {
		e.skip(t, "incomplete history")
		return domain.Observation{}, false, nil
	}

	w, err := domain.SelectWindow(samples, t, e.opts.Window)
	if errors.Is(err, domain.ErrEmptyWindow) {
		e.skip(t, "no samples")
		return domain.Observation{}, false, nil
	}
	if err != nil {
		return domain.Observation{}, false, err
	}

	window := velocities[w.Start:w.End:w.End]
	start := time.Now()
	fit, err := solver.SolveFrom(window, seed, e.opts.Solver)
	if err != nil {
		return domain.Observation{}, false, fmt.Errorf("solve window at %s: %w", t, err)
	}

	e.metrics.SolveDuration.Observe(time.Since(start).Seconds())
	e.metrics.SolverIterations.Observe(float64(fit.Iterations))
	e.metrics.WindowSamples.Observe(float64(w.Len()))
	e.metrics.Observations.Inc()
	if !fit.Converged {
		e.metrics.SolvesNonConverged.Inc()
		e.logger.Debug("wind solve hit iteration limit",
			"target_s", t.Seconds(),
			"iterations", fit.Iterations,
			"evaluations", fit.Evaluations,
			"cost", fit.Cost,
		)
	}

	return domain.NewObservation(t, window, samples[w.Last()], fit), true, nil
}

func (e *WindEstimator) skip(t time.Duration, reason string) {
	e.metrics.WindowsSkipped.Inc()
	e.logger.Debug("window skipped", "target_s", t.Seconds(), "reason", reason)
}

func checkTargets(targets []time.Duration) error {
	for i := 1; i < len(targets); i++ {
		if targets[i] <= targets[i-1] {
			return fmt.Errorf("%w: target %d (%s) follows %s", ErrTargetsNotIncreasing, i, targets[i], targets[i-1])
		}
	}
	return nil
}
