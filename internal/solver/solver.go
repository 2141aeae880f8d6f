// Package solver fits wind and airspeed to a window of ground velocities.
//
// The fit minimizes
//
//	cost(a, wx, wy) = Σ (a - |v - w|)²
//
// over airspeed a and wind w = (wx, wy), scaled by a plausibility penalty
// when a leaves [MinAirspeed, MaxAirspeed]. The search is a derivative-free
// Nelder-Mead simplex started from a fixed seed so every window is solved
// independently and reproducibly.
package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"gonum.org/v1/gonum/optimize"
)

// Seed is the starting point for every solve: 10 m/s airspeed, no wind.
var Seed = domain.WindSolution{Airspeed: 10}

// Settings bounds the search and shapes the penalty.
type Settings struct {
	MinAirspeed float64
	MaxAirspeed float64

	// MaxIterations and MaxEvaluations cap the simplex search. Zero means
	// no cap. Reaching either cap marks the fit as not converged.
	MaxIterations  int
	MaxEvaluations int

	// The search converges once the best cost has not improved by more than
	// Tolerance for StallIterations consecutive iterations.
	Tolerance       float64
	StallIterations int
}

// DefaultSettings returns the bounds used when nothing else is configured.
func DefaultSettings() Settings {
	return Settings{
		MinAirspeed:     5,
		MaxAirspeed:     25,
		MaxIterations:   2000,
		MaxEvaluations:  4000,
		Tolerance:       1e-12,
		StallIterations: 200,
	}
}

// Validate reports settings the solver cannot work with.
func (s Settings) Validate() error {
	if math.IsNaN(s.MinAirspeed) || math.IsNaN(s.MaxAirspeed) || s.MinAirspeed > s.MaxAirspeed {
		return fmt.Errorf("invalid airspeed bounds [%v, %v]", s.MinAirspeed, s.MaxAirspeed)
	}
	if s.MaxIterations < 0 || s.MaxEvaluations < 0 || s.StallIterations < 0 {
		return errors.New("iteration limits must not be negative")
	}
	if s.MaxIterations == 0 && s.MaxEvaluations == 0 && s.StallIterations == 0 {
		return errors.New("search has no termination condition")
	}
	return nil
}

// Cost returns the penalized squared residual of a candidate solution.
func Cost(window []domain.Velocity, s domain.WindSolution, minAirspeed, maxAirspeed float64) float64 {
	var sum float64
	for _, v := range window {
		r := s.Airspeed - math.Hypot(v.North-s.WindNorth, v.East-s.WindEast)
		sum += r * r
	}
	return sum * penalty(s.Airspeed, minAirspeed, maxAirspeed)
}

// penalty grows linearly with the distance outside the plausible airspeed
// range and is 1 inside it.
func penalty(airspeed, minAirspeed, maxAirspeed float64) float64 {
	switch {
	case airspeed < minAirspeed:
		return minAirspeed - airspeed + 1
	case airspeed > maxAirspeed:
		return airspeed - maxAirspeed + 1
	default:
		return 1
	}
}

// Solve fits a WindSolution to window starting from Seed.
func Solve(window []domain.Velocity, settings Settings) (domain.WindFit, error) {
	return SolveFrom(window, Seed, settings)
}

// SolveFrom fits a WindSolution to window starting from seed. It returns
// domain.ErrEmptyWindow when window is empty.
func SolveFrom(window []domain.Velocity, seed domain.WindSolution, settings Settings) (domain.WindFit, error) {
	if len(window) == 0 {
		return domain.WindFit{}, domain.ErrEmptyWindow
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return Cost(window, toSolution(x), settings.MinAirspeed, settings.MaxAirspeed)
		},
	}
	opts := &optimize.Settings{
		MajorIterations: settings.MaxIterations,
		FuncEvaluations: settings.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   settings.Tolerance,
			Iterations: settings.StallIterations,
		},
	}

	x0 := []float64{seed.Airspeed, seed.WindEast, seed.WindNorth}
	res, err := optimize.Minimize(problem, x0, opts, &optimize.NelderMead{})
	if res == nil {
		return domain.WindFit{}, fmt.Errorf("minimize: %w", err)
	}

	return domain.WindFit{
		Solution:    toSolution(res.X),
		Converged:   err == nil && converged(res.Status),
		Cost:        res.F,
		Iterations:  res.MajorIterations,
		Evaluations: res.FuncEvaluations,
	}, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.Failure:
		return false
	}
	return true
}

func toSolution(x []float64) domain.WindSolution {
	return domain.WindSolution{Airspeed: x[0], WindEast: x[1], WindNorth: x[2]}
}
