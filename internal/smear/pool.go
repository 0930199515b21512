// Package smear draws reproducible angular perturbations used to emulate
// vertex resolution on the B flight direction.
//
// An empirical Pool is loaded once per run and shared read-only. Each
// processing context (one input tree) owns its own Drawer and Synthesizer,
// created from explicit seeds, and draws from them strictly in row order.
package smear

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyPool is returned when no angle survives loading.
	ErrEmptyPool = errors.New("empirical angle pool is empty")
	// ErrNoPool is returned when drawing from a context built without a pool.
	ErrNoPool = errors.New("no empirical angle pool loaded")
	// ErrInvalidRange is returned for an inverted or non-finite filter range.
	ErrInvalidRange = errors.New("invalid filter range")
)

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64
	Max float64
}

// DefaultFilter is the window applied to the auxiliary delta-theta samples.
var DefaultFilter = Range{Min: -0.25, Max: 0.25}

// Contains reports whether x lies in [Min, Max].
func (r Range) Contains(x float64) bool {
	return x >= r.Min && x <= r.Max
}

// Validate checks the range bounds.
func (r Range) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return fmt.Errorf("%w: [%g, %g] is not finite", ErrInvalidRange, r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: min %g > max %g", ErrInvalidRange, r.Min, r.Max)
	}
	return nil
}

// Pool is an immutable ordered set of observed angle deltas (radians).
type Pool struct {
	values []float64
}

// LoadPool builds a Pool from raw samples. With a filter, samples outside
// [Min, Max] are dropped and the rest are stored as absolute values;
// without one, samples are kept signed and unfiltered. Non-finite samples
// are always dropped.
func LoadPool(samples []float64, filter *Range) (*Pool, error) {
	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil, err
		}
	}

	values := make([]float64, 0, len(samples))
	for _, x := range samples {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		if filter != nil {
			if !filter.Contains(x) {
				continue
			}
			x = math.Abs(x)
		}
		values = append(values, x)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %d samples read, none kept", ErrEmptyPool, len(samples))
	}
	return &Pool{values: values}, nil
}

// Len is the number of pooled values.
func (p *Pool) Len() int { return len(p.values) }

// At returns the i-th value.
func (p *Pool) At(i int) float64 { return p.values[i] }

// Values returns a copy of the pooled values.
func (p *Pool) Values() []float64 {
	out := make([]float64, len(p.values))
	copy(out, p.values)
	return out
}

// Summary returns the mean and standard deviation of the pool.
func (p *Pool) Summary() (mean, stdDev float64) {
	return stat.MeanStdDev(p.values, nil)
}
