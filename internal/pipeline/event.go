package pipeline

import (
	"math"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
)

func readFloat(row ntuple.Row, name string) float64 {
	v, ok := row.Float(name)
	if !ok {
		return math.NaN()
	}
	return v
}

// readFourVector reads <prefix>_PX/PY/PZ/PE.
func readFourVector(row ntuple.Row, prefix string) kinematics.FourVector {
	b := FourMomentumBranches(prefix)
	return kinematics.NewFourVector(readFloat(row, b[0]), readFloat(row, b[1]), readFloat(row, b[2]), readFloat(row, b[3]))
}

// readPoint reads three coordinate branches.
func readPoint(row ntuple.Row, branches []string) kinematics.Point3 {
	return kinematics.Point3{
		X: readFloat(row, branches[0]),
		Y: readFloat(row, branches[1]),
		Z: readFloat(row, branches[2]),
	}
}

// candidate is the per-entry input of the smear job.
type candidate struct {
	recoB     kinematics.FourVector
	companion kinematics.FourVector
	lepton    kinematics.FourVector
	endVertex kinematics.Point3
	ownPV     kinematics.Point3
}

// candidateReader knows which branches of one tree describe a candidate.
type candidateReader struct {
	m             DecayMode
	// fromDaughters rebuilds the reconstructed B as companion + lepton when
	// the tree carries no B four-momentum.
	fromDaughters bool
}

func newCandidateReader(t ntuple.Table, m DecayMode) candidateReader {
	r := candidateReader{m: m}
	for _, b := range FourMomentumBranches(m.BPrefix) {
		if !t.HasBranch(b) {
			r.fromDaughters = true
			break
		}
	}
	return r
}

func (r candidateReader) branches() []string {
	var out []string
	if !r.fromDaughters {
		out = append(out, FourMomentumBranches(r.m.BPrefix)...)
	}
	out = append(out, FourMomentumBranches(r.m.DPrefix)...)
	out = append(out, FourMomentumBranches(LeptonPrefix)...)
	out = append(out, r.m.EndVertexBranches()...)
	out = append(out, r.m.OwnPVBranches()...)
	return out
}

func (r candidateReader) read(row ntuple.Row) candidate {
	c := candidate{
		companion: readFourVector(row, r.m.DPrefix),
		lepton:    readFourVector(row, LeptonPrefix),
		endVertex: readPoint(row, r.m.EndVertexBranches()),
		ownPV:     readPoint(row, r.m.OwnPVBranches()),
	}
	if r.fromDaughters {
		c.recoB = c.companion.Add(c.lepton)
	} else {
		c.recoB = readFourVector(row, r.m.BPrefix)
	}
	return c
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
