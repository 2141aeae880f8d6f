package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run identifies one estimation pass over a sample sequence and the
// parameters it used. Sinks key stored observations by Run.ID.
type Run struct {
	ID          string        `json:"id"`
	Source      string        `json:"source"`
	StartedAt   time.Time     `json:"started_at"`
	Window      time.Duration `json:"window"`
	MinAirspeed float64       `json:"min_airspeed"`
	MaxAirspeed float64       `json:"max_airspeed"`
}

// NewRun stamps a run with a fresh ID and the package clock.
func NewRun(source string, window time.Duration, minAirspeed, maxAirspeed float64) Run {
	return Run{
		ID:          uuid.NewString(),
		Source:      source,
		StartedAt:   clock.Now().UTC(),
		Window:      window,
		MinAirspeed: minAirspeed,
		MaxAirspeed: maxAirspeed,
	}
}
