package kinematics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Direction is a flight direction. Only its orientation is meaningful;
// Unit normalises it on demand.
type Direction struct {
	v r3.Vec
}

// NewDirection wraps an arbitrary (non-normalised) vector.
func NewDirection(v r3.Vec) Direction { return Direction{v: v} }

// EstimateDirection returns the flight direction from the production vertex
// to the decay vertex, with its polar angle shifted by angleOffset radians.
// The azimuth is preserved. A zero displacement yields a zero Direction whose
// Unit is the zero vector; the solver rejects it as degenerate.
func EstimateDirection(decay, production Point3, angleOffset float64) Direction {
	flight := r3.Sub(decay, production)
	if angleOffset != 0 {
		flight = withTheta(flight, Theta(flight)+angleOffset)
	}
	return Direction{v: flight}
}

// Vec returns the underlying, non-normalised vector.
func (d Direction) Vec() r3.Vec { return d.v }

// Unit returns the unit vector, or the zero vector for a zero direction.
func (d Direction) Unit() r3.Vec {
	n := r3.Norm(d.v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, d.v)
}

// Cosines returns the direction cosines (cx, cy, cz).
func (d Direction) Cosines() (cx, cy, cz float64) {
	u := d.Unit()
	return u.X, u.Y, u.Z
}

// Theta is the polar angle of the direction.
func (d Direction) Theta() float64 { return Theta(d.v) }

// Phi is the azimuthal angle of the direction.
func (d Direction) Phi() float64 { return Phi(d.v) }

// Theta returns the polar angle of v in [0, pi]; 0 for the zero vector.
func Theta(v r3.Vec) float64 {
	if v.X == 0 && v.Y == 0 && v.Z == 0 {
		return 0
	}
	return math.Atan2(math.Hypot(v.X, v.Y), v.Z)
}

// Phi returns the azimuthal angle of v in (-pi, pi]; 0 on the z axis.
func Phi(v r3.Vec) float64 {
	if v.X == 0 && v.Y == 0 {
		return 0
	}
	return math.Atan2(v.Y, v.X)
}

// withTheta keeps |v| and phi and replaces the polar angle.
func withTheta(v r3.Vec, theta float64) r3.Vec {
	mag := r3.Norm(v)
	phi := Phi(v)
	sinT, cosT := math.Sincos(theta)
	return r3.Vec{
		X: mag * sinT * math.Cos(phi),
		Y: mag * sinT * math.Sin(phi),
		Z: mag * cosT,
	}
}
