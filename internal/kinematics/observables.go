package kinematics

import (
	"math"

	"github.com/banshee-data/restframe/internal/units"
)

// Observables are the rest-frame fit variables of one candidate.
type Observables struct {
	MissingMass2 float64 // GeV^2
	Q2           float64 // GeV^2
	El           float64 // GeV
}

// MissingMassSquared is (estB - recoB)^2 in GeV^2. Negative values are
// legitimate and returned as-is.
func MissingMassSquared(estB, recoB FourVector) float64 {
	return units.MeV2ToGeV2(estB.Sub(recoB).M2())
}

// MomentumTransferSquared is q^2 = (estB - companion)^2 in GeV^2.
func MomentumTransferSquared(estB, companion FourVector) float64 {
	return units.MeV2ToGeV2(estB.Sub(companion).M2())
}

// LeptonRestFrameEnergy is the lepton energy in the estB rest frame, in GeV.
// It returns NaN when estB is not timelike.
func LeptonRestFrameEnergy(estB, lepton FourVector) float64 {
	b, ok := estB.RestFrameBoost()
	if !ok {
		return math.NaN()
	}
	return units.MeVToGeV(lepton.Boost(b).E())
}

// ComputeObservables evaluates all three observables.
func ComputeObservables(estB, recoB, companion, lepton FourVector) Observables {
	return Observables{
		MissingMass2: MissingMassSquared(estB, recoB),
		Q2:           MomentumTransferSquared(estB, companion),
		El:           LeptonRestFrameEnergy(estB, lepton),
	}
}

// IsFinite reports whether all three observables are finite.
func (o Observables) IsFinite() bool {
	return isFinite(o.MissingMass2) && isFinite(o.Q2) && isFinite(o.El)
}
