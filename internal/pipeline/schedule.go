package pipeline

import (
	"fmt"
	"time"

	"github.com/couchcryptid/wind-estimation-service/internal/domain"
)

// ScheduleConfig describes which target times to estimate. A nil Start
// means the first sample time plus the window; a nil End means the last
// sample time.
type ScheduleConfig struct {
	Start *time.Duration
	End   *time.Duration
	Step  time.Duration
}

// Targets returns strictly increasing target times from Start to End
// inclusive, Step apart. It returns no targets when there are no samples or
// Start is after End.
func (c ScheduleConfig) Targets(samples []domain.SensorSample, window time.Duration) ([]time.Duration, error) {
	if c.Step <= 0 {
		return nil, fmt.Errorf("schedule step must be positive, got %s", c.Step)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	start := samples[0].Time + window
	if c.Start != nil {
		start = *c.Start
	}
	end := samples[len(samples)-1].Time
	if c.End != nil {
		end = *c.End
	}
	if start > end {
		return nil, nil
	}

	targets := make([]time.Duration, 0, int((end-start)/c.Step)+1)
	for t := start; t <= end; t += c.Step {
		targets = append(targets, t)
	}
	return targets, nil
}
