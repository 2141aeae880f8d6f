package domain

import (
	"fmt"
	"sort"
	"time"
)

// Window is the half-open index range [Start, End) of samples that fall in a
// trailing time window.
type Window struct {
	Start int
	End   int
}

// Len returns the number of samples in the window.
func (w Window) Len() int { return w.End - w.Start }

// Last returns the index of the most recent sample in the window.
func (w Window) Last() int { return w.End - 1 }

// SelectWindow returns the samples with t-d <= time <= t. Both bounds are
// inclusive. samples must be sorted by time. An empty selection, for example
// a target time before the first sample, returns ErrEmptyWindow.
func SelectWindow(samples []SensorSample, t, d time.Duration) (Window, error) {
	from := t - d
	start := sort.Search(len(samples), func(i int) bool { return samples[i].Time >= from })
	end := sort.Search(len(samples), func(i int) bool { return samples[i].Time > t })
	if start >= end {
		return Window{}, fmt.Errorf("%w: [%s, %s]", ErrEmptyWindow, from, t)
	}
	return Window{Start: start, End: end}, nil
}
