package kinematics

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDegenerateDirection is returned when the flight direction is (nearly)
	// transverse to the beam axis, so pz/cz cannot be formed.
	ErrDegenerateDirection = errors.New("degenerate flight direction")
	// ErrDegenerateMass is returned when the reconstructed invariant mass is
	// (nearly) zero or not timelike.
	ErrDegenerateMass = errors.New("degenerate reconstructed mass")
	// ErrNonFinite is returned when an input or result carries NaN or Inf.
	ErrNonFinite = errors.New("non-finite kinematics")
)

// Default degeneracy thresholds.
const (
	DefaultMinAbsCosZ  = 1e-6
	DefaultMinRecoMass = 1e-3 // MeV
)

// Solver estimates the B four-momentum under a rest-mass constraint,
// assuming the B momentum is collinear with its flight direction.
type Solver struct {
	// MinAbsCosZ is the smallest |cz| accepted for the unit flight direction.
	MinAbsCosZ float64
	// MinRecoMass is the smallest reconstructed mass accepted, in MeV.
	MinRecoMass float64
}

// DefaultSolver returns a Solver with the default thresholds.
func DefaultSolver() Solver {
	return Solver{MinAbsCosZ: DefaultMinAbsCosZ, MinRecoMass: DefaultMinRecoMass}
}

// Solve rescales the reconstructed longitudinal momentum by mRef/m and
// projects it onto the flight direction:
//
//	|p| = (mRef / m) * pz / cz,   p = |p| * (cx, cy, cz),   E = sqrt(|p|^2 + mRef^2)
func (s Solver) Solve(reco FourVector, dir Direction, mRef float64) (FourVector, error) {
	if !reco.IsFinite() || !isFinite(mRef) {
		return FourVector{}, ErrNonFinite
	}
	m := reco.M()
	if !(m >= s.MinRecoMass) {
		return FourVector{}, fmt.Errorf("%w: m=%g MeV", ErrDegenerateMass, m)
	}
	cx, cy, cz := dir.Cosines()
	if !isFinite(cz) || math.Abs(cz) < s.MinAbsCosZ {
		return FourVector{}, fmt.Errorf("%w: cz=%g", ErrDegenerateDirection, cz)
	}

	pMag := (mRef / m) * reco.Pz() / cz
	out := NewFourVector(pMag*cx, pMag*cy, pMag*cz, math.Sqrt(pMag*pMag+mRef*mRef))
	if !out.IsFinite() {
		return FourVector{}, ErrNonFinite
	}
	return out, nil
}
