package pipeline_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/couchcryptid/wind-estimation-service/internal/observability"
	"github.com/couchcryptid/wind-estimation-service/internal/pipeline"
	"github.com/couchcryptid/wind-estimation-service/internal/synth"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEstimator(t *testing.T, opts pipeline.EstimatorOptions) *pipeline.WindEstimator {
	t.Helper()
	e, err := pipeline.NewWindEstimator(opts, observability.DiscardLogger(), newTestMetrics())
	require.NoError(t, err)
	return e
}

func secondsRange(from, to, step int) []time.Duration {
	var out []time.Duration
	for s := from; s <= to; s += step {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

func TestEstimateWind_RecoversSyntheticWind(t *testing.T) {
	f := synth.Thermalling()
	samples := f.Samples()
	targets := secondsRange(60, 300, 30)

	est, err := pipeline.EstimateWind(samples, targets, 60*time.Second, 5, 25)
	require.NoError(t, err)

	require.Len(t, est.Observations, len(targets))
	assert.Zero(t, est.Skipped)
	assert.Zero(t, est.NonConverged)
	for _, o := range est.Observations {
		assert.InDelta(t, f.Airspeed, o.Solution.Airspeed, 1e-2)
		assert.InDelta(t, f.WindEast, o.Solution.WindEast, 1e-2)
		assert.InDelta(t, f.WindNorth, o.Solution.WindNorth, 1e-2)
		assert.InDelta(t, 5, o.WindSpeed, 1e-2)
		assert.InDelta(t, math.Atan2(4, 3)*180/math.Pi, o.WindDirection, 0.2)
	}
}

func TestEstimate_ContextSampleIsLastInWindow(t *testing.T) {
	samples := synth.Thermalling().Samples()
	e := newEstimator(t, pipeline.DefaultEstimatorOptions())

	// 90.5s falls between samples; the context sample is the one at 90s.
	est, err := e.Estimate(context.Background(), samples, []time.Duration{90*time.Second + 500*time.Millisecond})
	require.NoError(t, err)

	require.Len(t, est.Observations, 1)
	o := est.Observations[0]
	assert.Equal(t, 90*time.Second+500*time.Millisecond, o.Time)
	assert.Equal(t, samples[90], o.Sample)
	// 30.5s through 90.5s holds samples 31..90.
	assert.Len(t, o.Velocities, 60)
	assert.Equal(t, domain.ProjectVelocity(samples[31].TrackAngle, samples[31].GroundSpeed), o.Velocities[0])
}

func TestEstimate_SkipsEmptyWindows(t *testing.T) {
	samples := synth.Thermalling().Samples()
	for i := range samples {
		samples[i].Time += 100 * time.Second
	}
	e := newEstimator(t, pipeline.DefaultEstimatorOptions())

	// 50s precedes the first sample at 100s.
	targets := []time.Duration{50 * time.Second, 130 * time.Second, 200 * time.Second}
	est, err := e.Estimate(context.Background(), samples, targets)
	require.NoError(t, err)

	assert.Equal(t, 1, est.Skipped)
	require.Len(t, est.Observations, 2)
	assert.Equal(t, 130*time.Second, est.Observations[0].Time)
	assert.Equal(t, 200*time.Second, est.Observations[1].Time)
}

func TestEstimate_SkipsGapInSamples(t *testing.T) {
	samples := synth.Thermalling().Samples()
	// Drop 200s..399s so a 60s window ending at 300s is empty.
	gapped := append(append([]domain.SensorSample{}, samples[:200]...), samples[400:]...)
	e := newEstimator(t, pipeline.DefaultEstimatorOptions())

	est, err := e.Estimate(context.Background(), gapped, secondsRange(150, 450, 150))
	require.NoError(t, err)

	assert.Equal(t, 1, est.Skipped)
	require.Len(t, est.Observations, 2)
	assert.Equal(t, 150*time.Second, est.Observations[0].Time)
	assert.Equal(t, 450*time.Second, est.Observations[1].Time)
}

func TestEstimate_FullWindowsOnly(t *testing.T) {
	samples := synth.Thermalling().Samples()
	opts := pipeline.DefaultEstimatorOptions()
	opts.FullWindowsOnly = true
	e := newEstimator(t, opts)

	// 30s has samples but less than a full 60s of history.
	est, err := e.Estimate(context.Background(), samples, []time.Duration{30 * time.Second, 60 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, 1, est.Skipped)
	require.Len(t, est.Observations, 1)
	assert.Equal(t, 60*time.Second, est.Observations[0].Time)
}

func TestEstimateWind_PartialHistory(t *testing.T) {
	samples := synth.Thermalling().Samples()
	targets := []time.Duration{-5 * time.Second, 0, 30 * time.Second, 100 * time.Second}

	est, err := pipeline.EstimateWind(samples, targets, time.Minute, 5, 25)
	require.NoError(t, err)
	assert.Equal(t, 1, est.Skipped)
	require.Len(t, est.Observations, 3)
	assert.Equal(t, time.Duration(0), est.Observations[0].Time)
	assert.Len(t, est.Observations[0].Velocities, 1)

	strict, err := pipeline.EstimateWind(samples, targets, time.Minute, 5, 25, pipeline.WithFullWindowsOnly())
	require.NoError(t, err)
	assert.Equal(t, 3, strict.Skipped)
	require.Len(t, strict.Observations, 1)
	assert.Equal(t, 100*time.Second, strict.Observations[0].Time)
}

func TestEstimate_OutputIsMonotonicSubsequence(t *testing.T) {
	samples := synth.Thermalling().Samples()
	samples = append(samples[:100:100], samples[300:]...)
	targets := secondsRange(0, 700, 20)
	e := newEstimator(t, pipeline.DefaultEstimatorOptions())

	est, err := e.Estimate(context.Background(), samples, targets)
	require.NoError(t, err)

	assert.Equal(t, len(targets), len(est.Observations)+est.Skipped)
	inTargets := make(map[time.Duration]bool, len(targets))
	for _, tt := range targets {
		inTargets[tt] = true
	}
	for i, o := range est.Observations {
		assert.True(t, inTargets[o.Time], "observation at %s is not a target", o.Time)
		assert.NotEmpty(t, o.Velocities)
		if i > 0 {
			assert.Greater(t, o.Time, est.Observations[i-1].Time)
		}
	}
}

func TestEstimate_ConcurrentMatchesSequential(t *testing.T) {
	f := synth.Thermalling()
	f.SpeedNoise, f.TrackNoise, f.Seed = 0.4, 2, 7
	samples := f.Samples()
	targets := secondsRange(0, 600, 10)

	seq := newEstimator(t, pipeline.DefaultEstimatorOptions())
	opts := pipeline.DefaultEstimatorOptions()
	opts.Workers = 8
	par := newEstimator(t, opts)

	want, err := seq.Estimate(context.Background(), samples, targets)
	require.NoError(t, err)
	got, err := par.Estimate(context.Background(), samples, targets)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concurrent estimate differs (-sequential +concurrent):\n%s", diff)
	}
}

func TestEstimate_WarmStartStillRecoversWind(t *testing.T) {
	f := synth.Thermalling()
	samples := f.Samples()
	opts := pipeline.DefaultEstimatorOptions()
	opts.WarmStart = true
	opts.Workers = 4 // ignored when warm starting
	e := newEstimator(t, opts)

	est, err := e.Estimate(context.Background(), samples, secondsRange(60, 300, 60))
	require.NoError(t, err)

	require.Len(t, est.Observations, 5)
	for _, o := range est.Observations {
		assert.InDelta(t, f.Airspeed, o.Solution.Airspeed, 1e-2)
	}
}

func TestEstimate_ReportsNonConvergence(t *testing.T) {
	samples := synth.Thermalling().Samples()
	opts := pipeline.DefaultEstimatorOptions()
	opts.Solver.MaxIterations = 2
	e := newEstimator(t, opts)

	est, err := e.Estimate(context.Background(), samples, secondsRange(60, 120, 30))
	require.NoError(t, err)

	assert.Equal(t, 3, est.NonConverged)
	for _, o := range est.Observations {
		assert.False(t, o.Converged)
	}
}

func TestEstimate_RejectsBadInput(t *testing.T) {
	e := newEstimator(t, pipeline.DefaultEstimatorOptions())
	samples := synth.Thermalling().Samples()

	_, err := e.Estimate(context.Background(), samples, []time.Duration{time.Minute, time.Minute})
	require.ErrorIs(t, err, pipeline.ErrTargetsNotIncreasing)

	unsorted := []domain.SensorSample{{Time: time.Second}, {Time: 0}}
	_, err = e.Estimate(context.Background(), unsorted, []time.Duration{time.Second})
	require.ErrorIs(t, err, domain.ErrUnsortedSamples)
}

func TestEstimate_ContextCancelled(t *testing.T) {
	for _, workers := range []int{1, 4} {
		opts := pipeline.DefaultEstimatorOptions()
		opts.Workers = workers
		e := newEstimator(t, opts)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := e.Estimate(ctx, synth.Thermalling().Samples(), secondsRange(60, 600, 5))
		assert.ErrorIs(t, err, context.Canceled, "workers=%d", workers)
	}
}

func TestEstimate_NoTargets(t *testing.T) {
	e := newEstimator(t, pipeline.DefaultEstimatorOptions())
	est, err := e.Estimate(context.Background(), synth.Thermalling().Samples(), nil)
	require.NoError(t, err)
	assert.Empty(t, est.Observations)
	assert.Zero(t, est.Skipped)
}

func TestNewWindEstimator_Validation(t *testing.T) {
	opts := pipeline.DefaultEstimatorOptions()
	opts.Window = 0
	_, err := pipeline.NewWindEstimator(opts, observability.DiscardLogger(), newTestMetrics())
	require.Error(t, err)

	_, err = pipeline.EstimateWind(nil, nil, time.Minute, 25, 5)
	require.Error(t, err)
}

func TestEstimate_Idempotent(t *testing.T) {
	samples := synth.Thermalling().Samples()
	targets := secondsRange(60, 600, 45)

	a, err := pipeline.EstimateWind(samples, targets, time.Minute, 5, 25)
	require.NoError(t, err)
	b, err := pipeline.EstimateWind(samples, targets, time.Minute, 5, 25)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(a, b, cmpopts.EquateEmpty()))
}
