package timing

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingMeasurement means a sample needed for a gap or a median
	// was null.
	ErrMissingMeasurement = errors.New("missing measurement")

	// ErrReadinessTimeout means the application did not record the
	// terminal checkpoints within the wait ceiling.
	ErrReadinessTimeout = errors.New("timed out waiting for measurements")

	// ErrMalformedResult means the evaluator returned a value of the
	// wrong JSON type.
	ErrMalformedResult = errors.New("wrong type returned from evaluator")

	// ErrThresholdExceeded means a median gap was not below its threshold.
	ErrThresholdExceeded = errors.New("threshold exceeded")
)

// ThresholdError reports a checkpoint whose median gap reached its
// threshold.
type ThresholdError struct {
	Checkpoint string
	Median     float64
	Threshold  float64
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("%s: expected < %v, was %v", e.Checkpoint, e.Threshold, e.Median)
}

// Unwrap makes errors.Is(err, ErrThresholdExceeded) hold.
func (e *ThresholdError) Unwrap() error {
	return ErrThresholdExceeded
}
