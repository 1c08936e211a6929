// Package measure holds the value types carried on the data bus: raw sensor
// readings, vectors, orientations and fixed-point coordinates.
package measure

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Gravity is standard gravity in m/s².
const Gravity = 9.80665

// Axes is a raw signed per-axis sensor value.
type Axes struct {
	X, Y, Z int32
}

// Reading is a raw sensor sample with its scale denominator, e.g. LSB per g
// for an accelerometer or LSB per deg/s for a gyroscope.
type Reading struct {
	Axes        Axes
	Sensitivity int32
}

// Vec converts the reading to sensor units.
func (r Reading) Vec() r3.Vec {
	s := float64(r.Sensitivity)
	if s == 0 {
		s = 1
	}
	return r3.Vec{X: float64(r.Axes.X) / s, Y: float64(r.Axes.Y) / s, Z: float64(r.Axes.Z) / s}
}

// NewReading quantizes v (in sensor units) with the given sensitivity.
func NewReading(v r3.Vec, sensitivity int32) Reading {
	s := float64(sensitivity)
	return Reading{
		Axes: Axes{
			X: int32(math.Round(v.X * s)),
			Y: int32(math.Round(v.Y * s)),
			Z: int32(math.Round(v.Z * s)),
		},
		Sensitivity: sensitivity,
	}
}

// Mul multiplies a and b component-wise.
func Mul(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

// MaxAbs returns the largest absolute component of v.
func MaxAbs(v r3.Vec) float64 {
	return math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z)))
}

// Calibrated applies (v - bias) * gain.
func Calibrated(v, bias, gain r3.Vec) r3.Vec {
	return Mul(r3.Sub(v, bias), gain)
}

// Pressure is barometric pressure in Pa.
type Pressure float64

// Millivolts is a battery voltage.
type Millivolts uint16

// VerticalSpeed is climb rate in cm/s.
type VerticalSpeed int32

// MetersPerSecond converts to m/s.
func (v VerticalSpeed) MetersPerSecond() float64 { return float64(v) / 100 }

// Angle is a fixed-point angle in centidegrees.
type Angle int32

// Degrees converts to floating degrees.
func (a Angle) Degrees() float64 { return float64(a) / 100 }

// AngleFromDegrees quantizes degrees to centidegrees, wrapped to [0, 360).
func AngleFromDegrees(deg float64) Angle {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	a := Angle(math.Round(deg * 100))
	if a >= 36000 {
		a -= 36000
	}
	return a
}
