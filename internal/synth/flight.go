// Package synth generates ground-track samples for a vehicle flying at a
// known airspeed through a known, constant wind.
package synth

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Phase is a stretch of flight with a constant turn and climb rate.
type Phase struct {
	Duration time.Duration
	// TurnRate in degrees per second; positive turns right, zero flies straight.
	TurnRate float64
	// ClimbRate in meters per second.
	ClimbRate float64
}

// Flight describes a synthetic flight.
type Flight struct {
	Airspeed  float64
	WindEast  float64
	WindNorth float64

	Interval time.Duration
	Phases   []Phase

	StartLat     float64
	StartLng     float64
	StartAlt     float64
	StartHeading float64

	// SpeedNoise and TrackNoise are standard deviations of Gaussian noise
	// added to ground speed (m/s) and track (degrees). Seed makes it repeatable.
	SpeedNoise float64
	TrackNoise float64
	Seed       uint64
}

// Thermalling returns a glider circling at 18 m/s with a 30 second turn,
// climbing 1.5 m/s, then gliding straight, in a 5 m/s wind blowing towards
// the east-north-east.
func Thermalling() Flight {
	return Flight{
		Airspeed:  18,
		WindEast:  4,
		WindNorth: 3,
		Interval:  time.Second,
		Phases: []Phase{
			{Duration: 5 * time.Minute, TurnRate: 12, ClimbRate: 1.5},
			{Duration: 2 * time.Minute, ClimbRate: -1},
			{Duration: 3 * time.Minute, TurnRate: -12, ClimbRate: 1.2},
		},
		StartLat: 47.38,
		StartLng: 8.54,
		StartAlt: 1200,
	}
}

// Samples flies the phases in order and returns one sample per Interval,
// starting at time zero.
func (f Flight) Samples() []domain.SensorSample {
	interval := f.Interval
	if interval <= 0 {
		interval = time.Second
	}
	dt := interval.Seconds()
	rng := rand.New(rand.NewPCG(f.Seed, f.Seed^0x9e3779b97f4a7c15))

	var samples []domain.SensorSample
	pos := orb.Point{f.StartLng, f.StartLat}
	alt := f.StartAlt
	heading := f.StartHeading
	var now time.Duration

	for _, ph := range f.Phases {
		for end := now + ph.Duration; now < end; now += interval {
			air := domain.ProjectVelocity(heading, f.Airspeed)
			east, north := air.East+f.WindEast, air.North+f.WindNorth
			speed := math.Hypot(east, north)
			track := normalizeDegrees(math.Atan2(east, north) * 180 / math.Pi)

			samples = append(samples, domain.SensorSample{
				Time:        now,
				TrackAngle:  normalizeDegrees(track + f.TrackNoise*rng.NormFloat64()),
				GroundSpeed: math.Max(0, speed+f.SpeedNoise*rng.NormFloat64()),
				Lat:         pos.Lat(),
				Lng:         pos.Lon(),
				Alt:         alt,
			})

			pos = geo.PointAtBearingAndDistance(pos, track, speed*dt)
			alt += ph.ClimbRate * dt
			heading = normalizeDegrees(heading + ph.TurnRate*dt)
		}
	}
	return samples
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
