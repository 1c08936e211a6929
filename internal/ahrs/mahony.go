package ahrs

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/measure"
)

// Correction is the optional yaw reference for a Mahony update: nil,
// Magnetism or Heading.
type Correction interface {
	correction()
}

// Magnetism is a calibrated magnetometer vector in body frame.
type Magnetism r3.Vec

// Heading is a compass heading or course in degrees, clockwise from true north.
type Heading float64

func (Magnetism) correction() {}
func (Heading) correction()   {}

// gravityDown is the accelerometer reading of a level, resting airframe in
// earth frame.
var gravityDown = r3.Vec{Z: -1}

// Mahony is a complementary-filter attitude estimator.
type Mahony struct {
	interval float64
	kp, ki   float64
	// north is magnetic north in east-north-up earth frame.
	north    r3.Vec
	integral r3.Vec
	q        quat.Number
}

// NewMahony returns a filter at identity orientation.
func NewMahony(sampleRate float64, kp, ki, declinationDeg float64) *Mahony {
	return &Mahony{
		interval: 1 / sampleRate,
		kp:       kp,
		ki:       ki,
		north:    measure.HeadingVector(declinationDeg),
		q:        measure.Identity,
	}
}

// Quaternion returns the body-to-earth orientation.
func (m *Mahony) Quaternion() quat.Number { return m.q }

// Reset returns to identity and clears the integral term.
func (m *Mahony) Reset() {
	m.q = measure.Identity
	m.integral = r3.Vec{}
}

// Update advances the orientation by one sample interval. gyro is in rad/s,
// accel in g. It returns false, leaving the orientation unchanged, when the
// acceleration cannot be normalized.
func (m *Mahony) Update(gyro, accel r3.Vec, c Correction) bool {
	n := r3.Norm(accel)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	a := r3.Scale(1/n, accel)
	q := m.q

	// Gravity direction implied by the current orientation.
	v := measure.RotateInverse(q, gravityDown)
	e := r3.Cross(v, a)

	switch c := c.(type) {
	case Magnetism:
		e = r3.Add(e, m.magnetismError(r3.Vec(c)))
	case Heading:
		e = r3.Add(e, m.headingError(float64(c)))
	}

	if m.ki > 0 {
		m.integral = r3.Add(m.integral, r3.Scale(m.interval, e))
	} else {
		m.integral = r3.Vec{}
	}

	w := r3.Sub(r3.Sub(gyro, r3.Scale(m.kp, e)), r3.Scale(m.ki, m.integral))
	dq := quat.Scale(0.5*m.interval, quat.Mul(q, quat.Number{Imag: w.X, Jmag: w.Y, Kmag: w.Z}))
	m.q = measure.Normalize(quat.Add(q, dq))
	return true
}

// magnetismError compares the horizontal projection of the measured field
// against magnetic north.
func (m *Mahony) magnetismError(mag r3.Vec) r3.Vec {
	h := measure.Rotate(m.q, mag)
	h.Z = 0
	n := r3.Norm(h)
	if n == 0 || math.IsNaN(n) {
		return r3.Vec{}
	}
	h = r3.Scale(1/n, h)
	return measure.RotateInverse(m.q, r3.Cross(m.north, h))
}

// headingError compares the horizontal body forward axis against a
// synthetic reference built from heading.
func (m *Mahony) headingError(deg float64) r3.Vec {
	f := measure.Rotate(m.q, r3.Vec{Y: 1})
	f.Z = 0
	if r3.Norm2(f) <= 0.01 {
		// Nose near vertical: heading is undefined.
		return r3.Vec{}
	}
	f = r3.Unit(f)
	return measure.RotateInverse(m.q, r3.Cross(measure.HeadingVector(deg), f))
}
