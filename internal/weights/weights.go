// Package weights turns a vertex angle delta into a pair of up/down
// systematic variation weights, 1 ± c·ln|Δθ|.
package weights

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrZeroDelta is returned for Δθ == 0, where ln|Δθ| diverges.
	ErrZeroDelta = errors.New("zero angle delta")
	// ErrNonFiniteDelta is returned for a NaN or infinite Δθ.
	ErrNonFiniteDelta = errors.New("non-finite angle delta")
)

// Convention selects which of the two weights carries the + sign.
type Convention int

const (
	// PlusFirst returns (1 + term, 1 - term).
	PlusFirst Convention = iota
	// MinusFirst returns (1 - term, 1 + term).
	MinusFirst
)

// Convention names as used in configuration files.
const (
	PlusFirstName  = "plus-first"
	MinusFirstName = "minus-first"
)

func (c Convention) String() string {
	switch c {
	case PlusFirst:
		return PlusFirstName
	case MinusFirst:
		return MinusFirstName
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention maps a configuration name to a Convention.
func ParseConvention(name string) (Convention, error) {
	switch name {
	case PlusFirstName:
		return PlusFirst, nil
	case MinusFirstName:
		return MinusFirst, nil
	default:
		return 0, fmt.Errorf("unknown weight convention %q (want %s or %s)", name, PlusFirstName, MinusFirstName)
	}
}

// Coefficients of the two historical generators.
const (
	ScaleCoeff = 0.074
	DebugCoeff = 0.01
)

// Generator is one named weight variant.
type Generator struct {
	// Name prefixes the output columns, e.g. "scale" -> wvtx_scale_p/m.
	Name       string
	Coeff      float64
	Convention Convention
}

// Scale is the variant used to scale large-Δθ events up and down.
func Scale() Generator {
	return Generator{Name: "scale", Coeff: ScaleCoeff, Convention: PlusFirst}
}

// Debug is the low-amplitude variant attached to the smeared reconstruction.
func Debug() Generator {
	return Generator{Name: "debug", Coeff: DebugCoeff, Convention: MinusFirst}
}

// PlusColumn is the output column name of the first weight.
func (g Generator) PlusColumn() string { return "wvtx_" + g.Name + "_p" }

// MinusColumn is the output column name of the second weight.
func (g Generator) MinusColumn() string { return "wvtx_" + g.Name + "_m" }

// Weights returns the weight pair for delta under g's coefficient and convention.
func (g Generator) Weights(delta float64) (plus, minus float64, err error) {
	return Compute(delta, g.Coeff, g.Convention)
}

// Compute returns the pair for term = coeff * ln|delta|.
func Compute(delta, coeff float64, conv Convention) (plus, minus float64, err error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, 0, ErrNonFiniteDelta
	}
	if delta == 0 {
		return 0, 0, ErrZeroDelta
	}

	term := coeff * math.Log(math.Abs(delta))
	if conv == MinusFirst {
		return 1 - term, 1 + term, nil
	}
	return 1 + term, 1 - term, nil
}
