package ins

import (
	"math"

	"flightcore/internal/bulletin"
	"flightcore/internal/measure"
	"flightcore/internal/schedule"
)

// seaLevelPressure is the ISA reference pressure in Pa.
const seaLevelPressure = 101325.0

// PressureAltitude converts static pressure to ISA pressure altitude.
func PressureAltitude(p measure.Pressure) measure.Altitude {
	// h(m) = 44330 * (1 - (p/p0)^(1/5.255))
	h := 44330.0 * (1.0 - math.Pow(float64(p)/seaLevelPressure, 1.0/5.255))
	return measure.AltitudeFromMeters(h)
}

// Variometer derives climb rate from successive altitudes.
type Variometer struct {
	alpha float64
	prev  measure.Altitude
	have  bool
	vs    float64 // cm/s, low-passed
}

func NewVariometer() *Variometer { return &Variometer{alpha: 0.2} }

// Update takes an altitude sampled dt seconds after the previous one. The
// first call only primes the variometer and reports false.
func (v *Variometer) Update(alt measure.Altitude, dt float64) (measure.VerticalSpeed, bool) {
	if !v.have {
		v.prev, v.have = alt, true
		return 0, false
	}
	if dt > 0 {
		raw := float64(alt-v.prev) / dt
		// Simple low-pass to reduce noise.
		v.vs = (1-v.alpha)*v.vs + v.alpha*raw
	}
	v.prev = alt
	return measure.VerticalSpeed(math.Round(v.vs)), true
}

// Altimeter turns barometer pressure into altitude and vertical speed on
// the bus.
type Altimeter struct {
	rate     schedule.Rate
	pressure *bulletin.Reader[measure.Pressure]
	altitude *bulletin.Writer[measure.Altitude]
	speed    *bulletin.Writer[measure.VerticalSpeed]

	vario *Variometer
	// ticks since the last consumed pressure sample.
	ticks int
}

func NewAltimeter(rate schedule.Rate, pressure *bulletin.Reader[measure.Pressure], altitude *bulletin.Writer[measure.Altitude], speed *bulletin.Writer[measure.VerticalSpeed]) *Altimeter {
	return &Altimeter{rate: rate, pressure: pressure, altitude: altitude, speed: speed, vario: NewVariometer()}
}

func (a *Altimeter) Rate() schedule.Rate { return a.rate }

func (a *Altimeter) Schedule() schedule.Outcome {
	a.ticks++
	p, ok := a.pressure.Get()
	if !ok {
		return schedule.Ran
	}
	alt := PressureAltitude(p)
	a.altitude.Write(alt)
	if vs, ok := a.vario.Update(alt, float64(a.ticks)/float64(a.rate)); ok {
		a.speed.Write(vs)
	}
	a.ticks = 0
	return schedule.Ran
}
