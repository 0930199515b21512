package pipeline

import (
	"fmt"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/units"
)

// FitVar copies an externally computed fit variable into physical units.
type FitVar struct {
	Output string
	Input  string
	Scale  func(float64) float64
}

// FitVars are the fit-variable input transforms, in output order.
var FitVars = []FitVar{
	{Output: "q2_input", Input: "FitVar_q2", Scale: units.MeV2ToGeV2},
	{Output: "mm2_input", Input: "FitVar_Mmiss2", Scale: units.MeV2ToGeV2},
	{Output: "el_input", Input: "FitVar_El", Scale: units.MeVToGeV},
}

// PassthroughBranches are copied unchanged when present.
var PassthroughBranches = []string{"runNumber", "eventNumber"}

// hasFitVars reports whether every fit-variable input exists in t.
func hasFitVars(t ntuple.Table) bool {
	for _, fv := range FitVars {
		if !t.HasBranch(fv.Input) {
			return false
		}
	}
	return true
}

func fitVarInputs() []string {
	out := make([]string, len(FitVars))
	for i, fv := range FitVars {
		out[i] = fv.Input
	}
	return out
}

// applyFitVars writes the rescaled inputs; non-finite values are failed
// columns like any other degenerate quantity.
func applyFitVars(in, out ntuple.Row, o *outcome) {
	for _, fv := range FitVars {
		v := fv.Scale(readFloat(in, fv.Input))
		out.SetFloat(fv.Output, v)
		if !finite(v) {
			o.fail(fmt.Errorf("%w: %s=%v", kinematics.ErrNonFinite, fv.Input, v), fv.Output)
		}
	}
}

func presentPassthrough(t ntuple.Table) []string {
	var out []string
	for _, b := range PassthroughBranches {
		if t.HasBranch(b) {
			out = append(out, b)
		}
	}
	return out
}

func copyPassthrough(names []string, in, out ntuple.Row) {
	for _, b := range names {
		v, _ := in.Int(b)
		out.SetInt(b, v)
	}
}
