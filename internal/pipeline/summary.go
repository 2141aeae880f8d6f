package pipeline

import (
	"math"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the observations of one run.
type Summary struct {
	Count         int     `json:"count"`
	MeanWindSpeed float64 `json:"mean_wind_speed"`
	StdWindSpeed  float64 `json:"std_wind_speed"`
	MeanAirspeed  float64 `json:"mean_airspeed"`
	StdAirspeed   float64 `json:"std_airspeed"`
	// MeanWindDirection is the circular mean of the wind direction in
	// degrees, weighted by wind speed.
	MeanWindDirection float64 `json:"mean_wind_direction"`
}

// Summarize computes run-level statistics. Standard deviations are zero for
// fewer than two observations.
func Summarize(observations []domain.Observation) Summary {
	n := len(observations)
	if n == 0 {
		return Summary{}
	}

	speeds := make([]float64, n)
	airspeeds := make([]float64, n)
	directions := make([]float64, n)
	for i, o := range observations {
		speeds[i] = o.WindSpeed
		airspeeds[i] = o.Solution.Airspeed
		directions[i] = o.WindDirection * math.Pi / 180
	}

	s := Summary{Count: n}
	if n == 1 {
		s.MeanWindSpeed, s.MeanAirspeed = speeds[0], airspeeds[0]
	} else {
		s.MeanWindSpeed, s.StdWindSpeed = stat.MeanStdDev(speeds, nil)
		s.MeanAirspeed, s.StdAirspeed = stat.MeanStdDev(airspeeds, nil)
	}
	s.MeanWindDirection = stat.CircularMean(directions, speeds) * 180 / math.Pi
	return s
}
