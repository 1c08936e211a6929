package ins

import (
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/bulletin"
	"flightcore/internal/measure"
)

// Positioning dead-reckons from a reference position re-anchored on fresh
// GNSS positions and barometric altitudes.
//
// The reported position is always reference + displacement.
type Positioning struct {
	gnss *bulletin.Reader[measure.Position]
	baro *bulletin.Reader[measure.Altitude]

	interval float64
	// baroSeen stops GNSS altitude from overriding the barometer once the
	// barometer has reported.
	baroSeen bool

	reference    measure.Position
	displacement r3.Vec
	velocity     r3.Vec
}

// NewPositioning builds a dead-reckoning integrator running at sampleRate.
// Either reader may be nil.
func NewPositioning(sampleRate int, gnss *bulletin.Reader[measure.Position], baro *bulletin.Reader[measure.Altitude]) *Positioning {
	if sampleRate <= 0 {
		sampleRate = 1000
	}
	return &Positioning{gnss: gnss, baro: baro, interval: 1 / float64(sampleRate)}
}

// Update consumes the velocity estimate of one sample, in m/s ENU, and
// returns the absolute position and the displacement from the reference in
// centimeters.
func (p *Positioning) Update(v r3.Vec) (measure.Position, measure.Displacement) {
	step := r3.Scale(0.5*p.interval, r3.Add(p.velocity, v))
	p.velocity = v

	if fix, ok := p.fix(); ok {
		p.reference.Latitude = fix.Latitude
		p.reference.Longitude = fix.Longitude
		p.displacement.X, p.displacement.Y = 0, 0
		if p.baroSeen {
			p.displacement.Z += step.Z
		} else {
			p.reference.Altitude = fix.Altitude
			p.displacement.Z = 0
		}
	} else if alt, ok := p.altitude(); ok {
		p.reference.Altitude = alt
		p.displacement.X += step.X
		p.displacement.Y += step.Y
		p.displacement.Z = 0
	} else {
		p.displacement = r3.Add(p.displacement, step)
	}

	d := measure.DisplacementFromMeters(p.displacement)
	return p.reference.Add(d), d
}

func (p *Positioning) fix() (measure.Position, bool) {
	if p.gnss == nil {
		return measure.Position{}, false
	}
	return p.gnss.Get()
}

func (p *Positioning) altitude() (measure.Altitude, bool) {
	if p.baro == nil {
		return 0, false
	}
	a, ok := p.baro.Get()
	if ok {
		p.baroSeen = true
	}
	return a, ok
}

// Displacement returns the raw displacement from the reference in meters ENU.
func (p *Positioning) Displacement() r3.Vec { return p.displacement }

// Reference returns the last anchor position.
func (p *Positioning) Reference() measure.Position { return p.reference }
