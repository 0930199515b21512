// Package pipeline runs the per-tree processing jobs: it detects the decay
// mode of each input tree, streams its entries through the kinematic engine
// in row order and writes the derived columns to an output sink.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
)

// ErrUnknownDecayMode is returned when none of the marker branches exists.
var ErrUnknownDecayMode = errors.New("no known branch found for D0 nor D*")

// LeptonPrefix is the branch prefix of the charged lepton.
const LeptonPrefix = "mu"

// DecayMode is one supported branch-prefix and mass-hypothesis configuration.
type DecayMode struct {
	Name    string
	Marker  string // branch whose presence selects this mode
	BPrefix string
	DPrefix string
	// ReferenceMass is the B mass hypothesis in MeV.
	ReferenceMass float64
}

var (
	// ModeB0 is B0 -> D* mu nu.
	ModeB0 = DecayMode{Name: "B0", Marker: "dst_PX", BPrefix: "b0", DPrefix: "dst", ReferenceMass: kinematics.B0Mass}
	// ModeBMinus is B- -> D0 mu nu.
	ModeBMinus = DecayMode{Name: "B-", Marker: "d0_PX", BPrefix: "b", DPrefix: "d0", ReferenceMass: kinematics.BMinusMass}
)

// KnownModes returns the supported modes in detection order.
func KnownModes() []DecayMode {
	return []DecayMode{ModeB0, ModeBMinus}
}

// DetectMode selects the first mode whose marker branch exists in t.
func DetectMode(t ntuple.Table) (DecayMode, error) {
	for _, m := range KnownModes() {
		if t.HasBranch(m.Marker) {
			return m, nil
		}
	}
	return DecayMode{}, fmt.Errorf("tree %s: %w (looked for %s, %s)", t.Name(), ErrUnknownDecayMode, ModeB0.Marker, ModeBMinus.Marker)
}

// prefixed returns prefix_v for every v.
func prefixed(prefix string, vars ...string) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = prefix + "_" + v
	}
	return out
}

// FourMomentumBranches are the <prefix>_PX/PY/PZ/PE branches.
func FourMomentumBranches(prefix string) []string {
	return prefixed(prefix, "PX", "PY", "PZ", "PE")
}

// EndVertexBranches are the B decay vertex coordinates.
func (m DecayMode) EndVertexBranches() []string {
	return prefixed(m.BPrefix, "ENDVERTEX_X", "ENDVERTEX_Y", "ENDVERTEX_Z")
}

// OwnPVBranches are the B production (primary) vertex coordinates.
func (m DecayMode) OwnPVBranches() []string {
	return prefixed(m.BPrefix, "OWNPV_X", "OWNPV_Y", "OWNPV_Z")
}

// TrueMomentumBranches are the simulated B momentum components.
func (m DecayMode) TrueMomentumBranches() []string {
	return prefixed(m.BPrefix, "TRUEP_X", "TRUEP_Y", "TRUEP_Z")
}

func (m DecayMode) String() string {
	return fmt.Sprintf("%s (B prefix %s, D prefix %s, mB %.2f MeV)", m.Name, m.BPrefix, m.DPrefix, m.ReferenceMass)
}
