package domain

import (
	"fmt"
	"math"
	"time"
)

// SensorSample is one ground-track measurement.
type SensorSample struct {
	// Time past start of sampling that this sample was taken.
	Time time.Duration `json:"time"`
	// TrackAngle is the ground track, degrees clockwise from north.
	TrackAngle float64 `json:"track_angle"`
	// GroundSpeed in meters per second.
	GroundSpeed float64 `json:"ground_speed"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	// Alt is meters above the WGS84 ellipsoid.
	Alt float64 `json:"alt"`
}

// Velocity is a ground velocity in meters per second.
type Velocity struct {
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// ProjectVelocity converts a track angle in degrees and a ground speed into
// east/north components.
func ProjectVelocity(trackDeg, groundSpeed float64) Velocity {
	rad := trackDeg * math.Pi / 180
	return Velocity{
		East:  groundSpeed * math.Sin(rad),
		North: groundSpeed * math.Cos(rad),
	}
}

// ProjectVelocities returns one Velocity per sample, index for index.
func ProjectVelocities(samples []SensorSample) []Velocity {
	out := make([]Velocity, len(samples))
	for i, s := range samples {
		out[i] = ProjectVelocity(s.TrackAngle, s.GroundSpeed)
	}
	return out
}

// ValidateOrder reports ErrUnsortedSamples if any sample time is earlier than
// the one before it.
func ValidateOrder(samples []SensorSample) error {
	for i := 1; i < len(samples); i++ {
		if samples[i].Time < samples[i-1].Time {
			return fmt.Errorf("%w: sample %d at %s precedes sample %d at %s",
				ErrUnsortedSamples, i, samples[i].Time, i-1, samples[i-1].Time)
		}
	}
	return nil
}
