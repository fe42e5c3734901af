package timing

import (
	"fmt"
	"strings"
)

// Sample is one checkpoint reading. OK is false when the application had
// not recorded the timestamp.
type Sample struct {
	Value float64
	OK    bool
}

func (s Sample) String() string {
	if !s.OK {
		return "null"
	}
	return fmt.Sprintf("%v", s.Value)
}

// Matrix holds one Sample per (checkpoint, trial).
// The Collector fills it; after Collect returns it is only read.
type Matrix struct {
	rows [][]Sample
}

// NewMatrix returns a matrix of checkpoints x trials null samples.
func NewMatrix(checkpoints, trials int) Matrix {
	rows := make([][]Sample, checkpoints)
	for i := range rows {
		rows[i] = make([]Sample, trials)
	}
	return Matrix{rows: rows}
}

// Trials returns the number of trials per checkpoint.
func (m Matrix) Trials() int {
	if len(m.rows) == 0 {
		return 0
	}
	return len(m.rows[0])
}

// Checkpoints returns the number of rows.
func (m Matrix) Checkpoints() int {
	return len(m.rows)
}

// Set stores a sample.
func (m Matrix) Set(id ID, trial int, s Sample) {
	m.rows[id][trial] = s
}

// At returns the sample of id in trial.
func (m Matrix) At(id ID, trial int) Sample {
	return m.rows[id][trial]
}

// Column returns a copy of every sample of id.
func (m Matrix) Column(id ID) []Sample {
	out := make([]Sample, len(m.rows[id]))
	copy(out, m.rows[id])
	return out
}

// Values returns the column of id as plain numbers. It fails with
// ErrMissingMeasurement if any trial is null.
func (m Matrix) Values(id ID) ([]float64, error) {
	out := make([]float64, len(m.rows[id]))
	for i, s := range m.rows[id] {
		if !s.OK {
			return nil, fmt.Errorf("%w: %s trial %d", ErrMissingMeasurement, id, i)
		}
		out[i] = s.Value
	}
	return out, nil
}

// FormatColumn renders the column of id like "[1 2 null]".
func (m Matrix) FormatColumn(id ID) string {
	parts := make([]string, len(m.rows[id]))
	for i, s := range m.rows[id] {
		parts[i] = s.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
