package measure

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Identity is the zero rotation.
var Identity = quat.Number{Real: 1}

// Rotate maps v from body frame to earth frame using the unit quaternion q.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// RotateInverse maps v from earth frame to body frame.
func RotateInverse(q quat.Number, v r3.Vec) r3.Vec {
	return Rotate(quat.Conj(q), v)
}

// Normalize scales q to unit norm. A zero quaternion yields Identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return Identity
	}
	return quat.Scale(1/n, q)
}

// Euler holds ZYX Tait-Bryan angles in radians. Yaw is counter-clockwise
// positive about the up axis.
type Euler struct {
	Roll, Pitch, Yaw float64
}

// EulerFrom decomposes q.
func EulerFrom(q quat.Number) Euler {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	sinp := 2 * (w*y - z*x)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	return Euler{
		Roll:  math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y)),
		Pitch: math.Asin(sinp),
		Yaw:   math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)),
	}
}

// QuaternionFrom composes ZYX angles into a unit quaternion.
func QuaternionFrom(e Euler) quat.Number {
	cr, sr := math.Cos(e.Roll/2), math.Sin(e.Roll/2)
	cp, sp := math.Cos(e.Pitch/2), math.Sin(e.Pitch/2)
	cy, sy := math.Cos(e.Yaw/2), math.Sin(e.Yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// Degrees converts all angles to degrees.
func (e Euler) Degrees() Euler {
	const k = 180 / math.Pi
	return Euler{Roll: e.Roll * k, Pitch: e.Pitch * k, Yaw: e.Yaw * k}
}

// Heading returns the compass heading of q in degrees, clockwise from north
// in [0, 360). The body forward axis is +Y, earth frame is east-north-up.
func Heading(q quat.Number) float64 {
	h := math.Mod(-EulerFrom(q).Yaw*180/math.Pi, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// HeadingVector returns the horizontal east-north unit vector pointing along
// the compass heading deg.
func HeadingVector(deg float64) r3.Vec {
	rad := deg * math.Pi / 180
	return r3.Vec{X: math.Sin(rad), Y: math.Cos(rad)}
}
