package ahrs

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/measure"
)

// Config carries the IMU calibration constants and filter gains.
type Config struct {
	SampleRate int
	// CalibrationSamples is the length of each calibration phase; defaults to
	// SampleRate.
	CalibrationSamples int

	AccelBias, AccelGain r3.Vec
	MagBias, MagGain     r3.Vec

	Kp, Ki         float64
	DeclinationDeg float64

	Mount Mount
}

// IMU runs gyro calibration and the Mahony filter, and derives earth-frame
// linear acceleration from the fused orientation.
type IMU struct {
	cfg         Config
	calibration *Calibration
	ahrs        *Mahony

	acceleration r3.Vec
	gyro         r3.Vec
}

func NewIMU(cfg Config) *IMU {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1000
	}
	if cfg.CalibrationSamples <= 0 {
		cfg.CalibrationSamples = cfg.SampleRate
	}
	if cfg.AccelGain == (r3.Vec{}) {
		cfg.AccelGain = r3.Vec{X: 1, Y: 1, Z: 1}
	}
	if cfg.MagGain == (r3.Vec{}) {
		cfg.MagGain = r3.Vec{X: 1, Y: 1, Z: 1}
	}
	return &IMU{
		cfg:         cfg,
		calibration: NewCalibration(cfg.CalibrationSamples),
		ahrs:        NewMahony(float64(cfg.SampleRate), cfg.Kp, cfg.Ki, cfg.DeclinationDeg),
	}
}

// Update consumes one accelerometer/gyroscope sample pair. c may carry an
// uncalibrated Magnetism reading (sensor units) or a Heading.
//
// It returns true only when a new orientation was produced: during
// calibration samples feed the bias estimator, and a degenerate
// acceleration leaves the previous output in place.
func (u *IMU) Update(accel, gyro measure.Reading, c Correction) bool {
	m := u.cfg.Mount
	g := m.Apply(gyro.Vec())
	if u.calibration.State() != Calibrated {
		u.calibration.Feed(g)
		return false
	}

	a := measure.Calibrated(m.Apply(accel.Vec()), u.cfg.AccelBias, u.cfg.AccelGain)
	u.gyro = u.calibration.Correct(g)
	rate := r3.Scale(degToRad, u.gyro)

	if mag, ok := c.(Magnetism); ok {
		c = Magnetism(measure.Calibrated(m.Apply(r3.Vec(mag)), u.cfg.MagBias, u.cfg.MagGain))
	}

	if !u.ahrs.Update(rate, a, c) {
		return false
	}
	u.acceleration = measure.Rotate(u.ahrs.Quaternion(), a)
	return true
}

const degToRad = math.Pi / 180

// Quaternion returns the fused body-to-earth orientation.
func (u *IMU) Quaternion() quat.Number { return u.ahrs.Quaternion() }

// Acceleration returns the last earth-frame acceleration in g.
func (u *IMU) Acceleration() r3.Vec { return u.acceleration }

// Gyro returns the last bias-corrected body rate in deg/s.
func (u *IMU) Gyro() r3.Vec { return u.gyro }

// Attitude returns the fused orientation as Euler angles in degrees.
func (u *IMU) Attitude() measure.Euler {
	return measure.EulerFrom(u.ahrs.Quaternion()).Degrees()
}

func (u *IMU) Calibration() *Calibration { return u.calibration }

// SkipCalibration marks the gyro bias learned, for bench testing.
func (u *IMU) SkipCalibration() { u.calibration.Skip() }
