package sim

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// metersPerDegree matches the fixed-point coordinate scale of 30.92 m per
// arc-second.
const metersPerDegree = 30.92 * 3600

// State is the true airframe state at an instant.
type State struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
	// Velocity is east-north-up in m/s.
	Velocity r3.Vec
}

// Trajectory yields the true state at an elapsed time.
type Trajectory interface {
	StateAt(elapsed time.Duration) State
}

// Orbit flies a deterministic figure-eight around a center with a gentle
// vertical profile.
type Orbit struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	RadiusM      float64
	Period       time.Duration
}

func (o Orbit) period() time.Duration {
	if o.Period <= 0 {
		return 120 * time.Second
	}
	return o.Period
}

func (o Orbit) radius() float64 {
	if o.RadiusM <= 0 {
		return 900
	}
	return o.RadiusM
}

// StateAt samples the orbit.
//
// Horizontal path, as a fraction of the radius:
//
//	x = cos(2πt/T)
//	y = 0.5*sin(4πt/T)
//
// Altitude is a sinusoid around AltM with its own period.
func (o Orbit) StateAt(elapsed time.Duration) State {
	period := o.period()
	r := o.radius()

	phase := float64(elapsed%period) / float64(period)
	w := 2 * math.Pi * phase
	dw := 2 * math.Pi / period.Seconds()

	east := r * math.Cos(w)
	north := 0.5 * r * math.Sin(2*w)
	ve := -r * dw * math.Sin(w)
	vn := r * dw * math.Cos(2*w)

	// Vertical period is decoupled from horizontal to avoid repetitive sync.
	vp := period / 2
	if vp < 30*time.Second {
		vp = 30 * time.Second
	}
	const amp = 50.0 // m
	wv := 2 * math.Pi * float64(elapsed%vp) / float64(vp)
	alt := o.AltM + amp*math.Sin(wv)
	vu := amp * (2 * math.Pi / vp.Seconds()) * math.Cos(wv)

	return State{
		LatDeg:   o.CenterLatDeg + north/metersPerDegree,
		LonDeg:   o.CenterLonDeg + east/(metersPerDegree*math.Cos(o.CenterLatDeg*math.Pi/180)),
		AltM:     alt,
		Velocity: r3.Vec{X: ve, Y: vn, Z: vu},
	}
}

// Track returns the course over ground in degrees for an ENU velocity.
func Track(v r3.Vec) float64 {
	return math.Mod(math.Atan2(v.X, v.Y)*180/math.Pi+360, 360)
}
