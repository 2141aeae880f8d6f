package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyWindow means no sample fell inside a target time's window.
	// The window is skipped; it never aborts a run.
	ErrEmptyWindow = errors.New("window contains no samples")

	// ErrUnsortedSamples means the sample sequence is not ordered by time.
	ErrUnsortedSamples = errors.New("samples are not sorted by time")

	// ErrRunNotFound means no stored run has the requested ID.
	ErrRunNotFound = errors.New("run not found")
)

// MalformedSampleError describes a data row that could not be parsed into a
// SensorSample. Row is 1-based and counts the header.
type MalformedSampleError struct {
	Row int
	Err error
}

func (e *MalformedSampleError) Error() string {
	return fmt.Sprintf("malformed sample at row %d: %v", e.Row, e.Err)
}

func (e *MalformedSampleError) Unwrap() error { return e.Err }
