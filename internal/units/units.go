// Package units provides shared constants and conversions for energy units.
// Input ntuples store energies and momenta in MeV; fit variables are in GeV.
package units

import "strings"

// Unit labels
const (
	MeV  = "MeV"
	GeV  = "GeV"
	GeV2 = "GeV^2"
)

// MeVPerGeV is the fixed scale between the two energy units.
const MeVPerGeV = 1000.0

// MeVToGeV converts an energy or momentum from MeV to GeV.
func MeVToGeV(x float64) float64 {
	return x / MeVPerGeV
}

// MeV2ToGeV2 converts a squared mass or q2 from MeV^2 to GeV^2.
func MeV2ToGeV2(x float64) float64 {
	return x / MeVPerGeV / MeVPerGeV
}

// Of returns the unit label of an output column, or "" for dimensionless
// and unknown columns. Smeared and input variants share the unit of their
// base observable.
func Of(column string) string {
	base, _, _ := strings.Cut(column, "_")
	switch base {
	case "mm2", "q2":
		return GeV2
	case "el":
		return GeV
	}
	if column == "b_m" {
		return MeV
	}
	return ""
}
