package ahrs

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/measure"
)

// State is the gyro-bias calibration phase.
type State int

const (
	Calibrating State = iota
	Validating
	Calibrated
)

func (s State) String() string {
	switch s {
	case Calibrating:
		return "calibrating"
	case Validating:
		return "validating"
	case Calibrated:
		return "calibrated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Calibration learns the gyroscope bias from consecutive stationary samples.
//
// Samples are in sensor units (deg/s); tolerance is one native unit of the
// sensor, i.e. Sensitivity raw counts.
type Calibration struct {
	samples   int
	remain    int
	tolerance float64
	bias      r3.Vec
	state     State
}

// NewCalibration runs each of the Calibrating and Validating phases for
// samples consecutive readings.
func NewCalibration(samples int) *Calibration {
	if samples < 1 {
		samples = 1
	}
	return &Calibration{samples: samples, remain: samples, tolerance: 1}
}

// Feed advances the state machine with one gyro sample and returns the new
// state.
func (c *Calibration) Feed(sample r3.Vec) State {
	switch c.state {
	case Calibrating:
		// Recency-weighted running value, not an arithmetic mean.
		c.bias = r3.Scale(0.5, r3.Add(c.bias, sample))
		c.remain--
		if c.remain <= 0 {
			c.state = Validating
			c.remain = c.samples
		}
	case Validating:
		if measure.MaxAbs(r3.Sub(sample, c.bias)) > c.tolerance {
			c.state = Calibrating
			c.remain = c.samples
			return c.state
		}
		c.remain--
		if c.remain <= 0 {
			c.state = Calibrated
		}
	}
	return c.state
}

// Correct removes the learned bias.
func (c *Calibration) Correct(sample r3.Vec) r3.Vec {
	return r3.Sub(sample, c.bias)
}

func (c *Calibration) State() State { return c.state }
func (c *Calibration) Bias() r3.Vec { return c.bias }

// Skip marks the calibration finished with the current bias.
func (c *Calibration) Skip() { c.state = Calibrated }
