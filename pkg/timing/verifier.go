package timing

import (
	"fmt"
	"sort"
)

// Result is the verdict for one checkpoint.
type Result struct {
	Checkpoint ID
	Name       string

	// Baseline is the checkpoint subtracted per trial, or None when the
	// raw samples were compared.
	Baseline ID

	// Gaps holds one value per trial, unsorted.
	Gaps []float64

	Median    float64
	Threshold float64

	// Err is nil when the checkpoint passed. Otherwise it wraps
	// ErrMissingMeasurement or ErrThresholdExceeded.
	Err error
}

// Passed reports whether the checkpoint met its threshold.
func (r Result) Passed() bool {
	return r.Err == nil
}

// Verifier checks matrix columns against registry thresholds.
type Verifier struct {
	registry *Registry
}

// NewVerifier returns a Verifier for r. A nil registry means Default().
func NewVerifier(r *Registry) *Verifier {
	if r == nil {
		r = Default()
	}
	return &Verifier{registry: r}
}

// Verify computes the median gap of id across all trials of m.
//
// The baseline is the optional override, else the declared predecessor.
// With no baseline the raw samples are compared to the threshold.
// The check passes iff median < threshold.
func (v *Verifier) Verify(m Matrix, id ID, baseline ...ID) Result {
	cp, ok := v.registry.Lookup(id)
	if !ok {
		return Result{Checkpoint: id, Name: id.String(), Baseline: None,
			Err: fmt.Errorf("unknown checkpoint %d", id)}
	}

	base := cp.Predecessor
	if len(baseline) > 0 {
		base = baseline[0]
	}
	res := Result{
		Checkpoint: id,
		Name:       cp.Name,
		Baseline:   base,
		Threshold:  cp.Threshold,
	}

	gaps, err := v.gaps(m, id, base)
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", cp.Name, err)
		return res
	}
	res.Gaps = gaps
	res.Median = Median(gaps)

	if !(res.Median < cp.Threshold) {
		res.Err = &ThresholdError{Checkpoint: cp.Name, Median: res.Median, Threshold: cp.Threshold}
	}
	return res
}

// gaps returns sample[id] - sample[base] per trial, or the raw column when
// base is None.
func (v *Verifier) gaps(m Matrix, id, base ID) ([]float64, error) {
	if m.Trials() == 0 || int(id) >= m.Checkpoints() || int(base) >= m.Checkpoints() {
		return nil, fmt.Errorf("%w: no samples", ErrMissingMeasurement)
	}
	if base == None {
		return m.Values(id)
	}
	if _, ok := v.registry.Lookup(base); !ok {
		return nil, fmt.Errorf("unknown baseline checkpoint %d", base)
	}
	out := make([]float64, m.Trials())
	for i := range out {
		cur, prev := m.At(id, i), m.At(base, i)
		if !cur.OK || !prev.OK {
			return nil, fmt.Errorf("%w: trial %d (%s=%v, %s=%v)", ErrMissingMeasurement, i,
				v.registry.Name(id), cur, v.registry.Name(base), prev)
		}
		out[i] = cur.Value - prev.Value
	}
	return out, nil
}

// Median returns the lower-middle element of the sorted values: for an
// even count the two central values are not averaged. values is not
// modified. Median of an empty slice is 0.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}
