package ins

import (
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/bulletin"
	"flightcore/internal/measure"
)

// SpeedometerConfig sets the integration interval and the aging windows of
// the reference readers.
type SpeedometerConfig struct {
	SampleRate int
	GNSSRate   int
	BaroRate   int
	Kp         float64
}

// Speedometer estimates earth-frame velocity in m/s from earth-frame
// acceleration.
type Speedometer struct {
	gnss    *bulletin.Reader[measure.Axes]
	gnssAge int
	baro    *bulletin.Reader[measure.VerticalSpeed]
	baroAge int

	axes [3]ComplementaryFilter
	prev r3.Vec
}

// NewSpeedometer builds a speedometer. gnss carries ENU velocity in mm/s and
// baro carries climb rate in cm/s; either may be nil.
func NewSpeedometer(cfg SpeedometerConfig, gnss *bulletin.Reader[measure.Axes], baro *bulletin.Reader[measure.VerticalSpeed]) *Speedometer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1000
	}
	interval := 1 / float64(cfg.SampleRate)
	s := &Speedometer{
		gnss:    gnss,
		gnssAge: AgingWindow(cfg.SampleRate, cfg.GNSSRate),
		baro:    baro,
		baroAge: AgingWindow(cfg.SampleRate, cfg.BaroRate),
	}
	for i := range s.axes {
		s.axes[i] = NewComplementaryFilter(cfg.Kp, interval)
	}
	return s
}

// AgingWindow is the number of sample ticks a reference updated at refRate
// stays fresh.
func AgingWindow(sampleRate, refRate int) int {
	if refRate <= 0 || refRate >= sampleRate {
		return 1
	}
	return sampleRate / refRate
}

// Update advances by one sample. accel is earth-frame acceleration in g, as
// read by an accelerometer, so a resting airframe reads (0, 0, -1).
func (s *Speedometer) Update(accel r3.Vec) r3.Vec {
	a := r3.Scale(measure.Gravity, accel)
	a.Z += measure.Gravity

	// Trapezoid over the previous and current acceleration.
	avg := r3.Scale(0.5, r3.Add(a, s.prev))
	s.prev = a

	vs, baroOK := s.baroSpeed()
	if v, ok := s.gnssVelocity(); ok {
		s.axes[0].Filter(v.X, a.X)
		s.axes[1].Filter(v.Y, a.Y)
		if baroOK {
			s.axes[2].Filter(vs, a.Z)
		} else {
			s.axes[2].Integrate(avg.Z)
		}
	} else if baroOK {
		s.axes[0].Integrate(avg.X)
		s.axes[1].Integrate(avg.Y)
		s.axes[2].Filter(vs, a.Z)
	} else {
		s.axes[0].Integrate(avg.X)
		s.axes[1].Integrate(avg.Y)
		s.axes[2].Integrate(avg.Z)
	}
	return s.Velocity()
}

func (s *Speedometer) Velocity() r3.Vec {
	return r3.Vec{X: s.axes[0].Value(), Y: s.axes[1].Value(), Z: s.axes[2].Value()}
}

func (s *Speedometer) gnssVelocity() (r3.Vec, bool) {
	if s.gnss == nil {
		return r3.Vec{}, false
	}
	v, ok := s.gnss.GetAgingLast(s.gnssAge)
	if !ok {
		return r3.Vec{}, false
	}
	return measure.MillimetersPerSecond(v), true
}

func (s *Speedometer) baroSpeed() (float64, bool) {
	if s.baro == nil {
		return 0, false
	}
	v, ok := s.baro.GetAgingLast(s.baroAge)
	if !ok {
		return 0, false
	}
	return v.MetersPerSecond(), true
}
