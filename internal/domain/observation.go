package domain

import (
	"encoding/json"
	"math"
	"time"
)

// WindSolution is the circle fitted to a window of ground velocities: its
// radius is the airspeed and its center the wind vector. Airspeed is not
// clamped and may fall outside the configured plausibility bounds.
type WindSolution struct {
	Airspeed  float64
	WindEast  float64
	WindNorth float64
}

// WindFit is a WindSolution together with diagnostics from the minimizer.
type WindFit struct {
	Solution WindSolution
	// Converged is false when the minimizer stopped on an iteration or
	// evaluation limit. The solution is still the best point found.
	Converged   bool
	Cost        float64
	Iterations  int
	Evaluations int
}

// Observation is one time-stamped wind estimate.
type Observation struct {
	Time time.Duration
	// Velocities are the window's ground velocities, oldest first. Never empty.
	Velocities []Velocity
	Solution   WindSolution
	// Sample is the most recent sample in the window.
	Sample SensorSample

	Converged   bool
	Cost        float64
	Iterations  int
	Evaluations int

	WindSpeed     float64
	WindDirection float64
}

// NewObservation packages a fit with its window and context sample and
// computes the derived wind speed and direction.
func NewObservation(t time.Duration, velocities []Velocity, sample SensorSample, fit WindFit) Observation {
	s := fit.Solution
	return Observation{
		Time:          t,
		Velocities:    velocities,
		Solution:      s,
		Sample:        sample,
		Converged:     fit.Converged,
		Cost:          fit.Cost,
		Iterations:    fit.Iterations,
		Evaluations:   fit.Evaluations,
		WindSpeed:     math.Hypot(s.WindEast, s.WindNorth),
		WindDirection: math.Atan2(s.WindEast, s.WindNorth) * 180 / math.Pi,
	}
}

// WindFromDirection converts a "towards" bearing in degrees into the
// meteorological "from" bearing in [0, 360).
func WindFromDirection(towards float64) float64 {
	from := math.Mod(towards+180, 360)
	if from < 0 {
		from += 360
	}
	return from
}

type observationJSON struct {
	TimeSeconds      float64      `json:"time_s"`
	Airspeed         float64      `json:"airspeed"`
	WindEast         float64      `json:"wind_east"`
	WindNorth        float64      `json:"wind_north"`
	WindSpeed        float64      `json:"wind_speed"`
	WindDirection    float64      `json:"wind_direction"`
	WindFrom         float64      `json:"wind_from"`
	Lat              float64      `json:"lat"`
	Lng              float64      `json:"lng"`
	Alt              float64      `json:"alt"`
	GroundSpeed      float64      `json:"ground_speed"`
	TrackAngle       float64      `json:"track_angle"`
	Converged        bool         `json:"converged"`
	Cost             float64      `json:"cost"`
	Iterations       int          `json:"iterations"`
	WindowSamples    int          `json:"window_samples"`
	WindowVelocities [][2]float64 `json:"window_velocities"`
}

// MarshalJSON renders times in seconds and velocities as [east, north] pairs.
func (o Observation) MarshalJSON() ([]byte, error) {
	vs := make([][2]float64, len(o.Velocities))
	for i, v := range o.Velocities {
		vs[i] = [2]float64{v.East, v.North}
	}
	return json.Marshal(observationJSON{
		TimeSeconds:      o.Time.Seconds(),
		Airspeed:         o.Solution.Airspeed,
		WindEast:         o.Solution.WindEast,
		WindNorth:        o.Solution.WindNorth,
		WindSpeed:        o.WindSpeed,
		WindDirection:    o.WindDirection,
		WindFrom:         WindFromDirection(o.WindDirection),
		Lat:              o.Sample.Lat,
		Lng:              o.Sample.Lng,
		Alt:              o.Sample.Alt,
		GroundSpeed:      o.Sample.GroundSpeed,
		TrackAngle:       o.Sample.TrackAngle,
		Converged:        o.Converged,
		Cost:             o.Cost,
		Iterations:       o.Iterations,
		WindowSamples:    len(o.Velocities),
		WindowVelocities: vs,
	})
}
