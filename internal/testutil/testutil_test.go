package testutil

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, errors.New("boom"))
}

func TestAssertErrorIs(t *testing.T) {
	sentinel := errors.New("sentinel")
	AssertErrorIs(t, fmt.Errorf("wrapped: %w", sentinel), sentinel)
}

func TestAssertNear(t *testing.T) {
	AssertNear(t, "value", 1.0000001, 1, 1e-6)
}

func TestAssertAllFinite(t *testing.T) {
	AssertAllFinite(t, "values", []float64{0, -1, math.MaxFloat64})
}

func TestAssertionsReportFailures(t *testing.T) {
	tests := []struct {
		name string
		fn   func(tb testing.TB)
	}{
		{"near", func(tb testing.TB) { AssertNear(tb, "x", 2, 1, 0.5) }},
		{"near NaN", func(tb testing.TB) { AssertNear(tb, "x", math.NaN(), 1, 0.5) }},
		{"finite", func(tb testing.TB) { AssertAllFinite(tb, "x", []float64{1, math.Inf(-1)}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{TB: t}
			tt.fn(rec)
			if !rec.failed {
				t.Error("assertion did not report a failure")
			}
		})
	}
}

// recorder captures Errorf calls without failing the parent test.
type recorder struct {
	testing.TB
	failed bool
}

func (r *recorder) Helper() {}

func (r *recorder) Errorf(string, ...interface{}) { r.failed = true }
