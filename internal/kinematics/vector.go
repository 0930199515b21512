// Package kinematics reconstructs rest-frame observables for partially
// reconstructed semileptonic B decays.
//
// Four-vectors are stored as go-hep fmom.PxPyPzE values in MeV; spatial
// quantities (vertices, flight directions, boosts) use gonum's r3.Vec.
// Everything in this package is a pure function of its arguments and is safe
// to call from any goroutine.
package kinematics

import (
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Point3 is a position in detector coordinates.
type Point3 = r3.Vec

// FourVector is an energy-momentum vector (px, py, pz, E) in MeV.
type FourVector struct {
	p fmom.PxPyPzE
}

// NewFourVector builds a FourVector from Cartesian components.
func NewFourVector(px, py, pz, e float64) FourVector {
	return FourVector{p: fmom.NewPxPyPzE(px, py, pz, e)}
}

// FromMomentumMass builds an on-shell FourVector from a 3-momentum and a mass.
func FromMomentumMass(p r3.Vec, m float64) FourVector {
	return NewFourVector(p.X, p.Y, p.Z, math.Sqrt(r3.Norm2(p)+m*m))
}

func (v FourVector) Px() float64 { return v.p.Px() }
func (v FourVector) Py() float64 { return v.p.Py() }
func (v FourVector) Pz() float64 { return v.p.Pz() }
func (v FourVector) E() float64  { return v.p.E() }

// M2 is the invariant mass squared. It is negative for spacelike vectors.
func (v FourVector) M2() float64 { return v.p.M2() }

// M is the invariant mass, carrying the sign of M2 for spacelike vectors.
func (v FourVector) M() float64 { return v.p.M() }

// P is the magnitude of the 3-momentum.
func (v FourVector) P() float64 { return v.p.P() }

// Vec3 returns the spatial part.
func (v FourVector) Vec3() r3.Vec {
	return r3.Vec{X: v.Px(), Y: v.Py(), Z: v.Pz()}
}

// Add returns v+w.
func (v FourVector) Add(w FourVector) FourVector {
	return NewFourVector(v.Px()+w.Px(), v.Py()+w.Py(), v.Pz()+w.Pz(), v.E()+w.E())
}

// Sub returns v-w.
func (v FourVector) Sub(w FourVector) FourVector {
	return NewFourVector(v.Px()-w.Px(), v.Py()-w.Py(), v.Pz()-w.Pz(), v.E()-w.E())
}

// RestFrameBoost returns the boost vector taking v to its own rest frame
// (-p/E). ok is false when v is not a future-pointing timelike vector.
func (v FourVector) RestFrameBoost() (b r3.Vec, ok bool) {
	e := v.E()
	if !(e > 0) || !(v.M2() > 0) {
		return r3.Vec{}, false
	}
	return r3.Scale(-1/e, v.Vec3()), true
}

// Boost returns v boosted by the velocity vector b (|b| < 1).
func (v FourVector) Boost(b r3.Vec) FourVector {
	out := fmom.Boost(&v.p, b)
	return NewFourVector(out.Px(), out.Py(), out.Pz(), out.E())
}

// IsFinite reports whether no component is NaN or infinite.
func (v FourVector) IsFinite() bool {
	return isFinite(v.Px()) && isFinite(v.Py()) && isFinite(v.Pz()) && isFinite(v.E())
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
