package kinematics

// PDG masses in MeV.
const (
	BMinusMass = 5279.34
	B0Mass     = 5279.65
)
