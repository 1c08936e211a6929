// Package sim stands in for the sensor drivers: it flies a deterministic
// trajectory and publishes what an IMU, barometer, magnetometer and GNSS
// receiver would report.
package sim

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/measure"
	"flightcore/internal/pipeline"
	"flightcore/internal/schedule"
)

// Sensitivities of the simulated parts.
const (
	AccelSensitivity = 4096 // LSB/g
	GyroSensitivity  = 16   // LSB/(deg/s)
	MagSensitivity   = 1000 // LSB/gauss
)

// minTrackSpeed is the ground speed below which course is undefined.
const minTrackSpeed = 0.5

type SensorsConfig struct {
	SampleRate       int
	GNSSRate         int
	BaroRate         int
	MagnetometerRate int
	BatteryRate      int

	// GroundTime holds the airframe still at the trajectory start, long
	// enough for gyro calibration.
	GroundTime     time.Duration
	DeclinationDeg float64
	GyroBiasDps    r3.Vec
	BatteryMv      int
}

// Sensors is a Schedulable running at the sample rate. Each Schedule advances
// simulated time by one sample and runs the due sensors.
type Sensors struct {
	cfg      SensorsConfig
	interval float64
	traj     Trajectory
	out      pipeline.SensorWriters
	parts    *schedule.Scheduler

	samples uint64
	truth   State
	prevVel r3.Vec
	accel   r3.Vec // ENU m/s²
	heading float64
	yawRate float64 // deg/s, about body up
	field   r3.Vec  // earth-frame magnetic field in gauss
}

func NewSensors(cfg SensorsConfig, traj Trajectory, out pipeline.SensorWriters) *Sensors {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1000
	}
	if cfg.BatteryRate <= 0 {
		cfg.BatteryRate = 1
	}
	s := &Sensors{
		cfg:      cfg,
		interval: 1 / float64(cfg.SampleRate),
		traj:     traj,
		out:      out,
		field:    r3.Add(r3.Scale(0.25, measure.HeadingVector(cfg.DeclinationDeg)), r3.Vec{Z: -0.4}),
	}
	units := []schedule.Schedulable{
		schedule.Func{Hz: schedule.Rate(cfg.SampleRate), Fn: s.inertial},
		schedule.Func{Hz: schedule.Rate(cfg.BatteryRate), Fn: s.battery},
	}
	if cfg.MagnetometerRate > 0 {
		units = append(units, schedule.Func{Hz: schedule.Rate(cfg.MagnetometerRate), Fn: s.magnetometer})
	}
	if cfg.BaroRate > 0 {
		units = append(units, schedule.Func{Hz: schedule.Rate(cfg.BaroRate), Fn: s.barometer})
	}
	if cfg.GNSSRate > 0 {
		units = append(units, schedule.Func{Hz: schedule.Rate(cfg.GNSSRate), Fn: s.gnss})
	}
	s.parts = schedule.New(schedule.Rate(cfg.SampleRate), units...)
	s.advance()
	return s
}

func (s *Sensors) Rate() schedule.Rate { return schedule.Rate(s.cfg.SampleRate) }

func (s *Sensors) Schedule() schedule.Outcome {
	s.parts.Tick()
	s.samples++
	s.advance()
	return schedule.Ran
}

// Elapsed returns the simulated time.
func (s *Sensors) Elapsed() time.Duration {
	return time.Duration(s.samples) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Truth returns the true state of the current sample.
func (s *Sensors) Truth() State { return s.truth }

// Heading returns the true heading of the current sample in degrees.
func (s *Sensors) Heading() float64 { return s.heading }

// advance computes the true state for the current sample.
func (s *Sensors) advance() {
	elapsed := s.Elapsed()
	if elapsed < s.cfg.GroundTime {
		s.truth = s.traj.StateAt(0)
		s.truth.Velocity = r3.Vec{}
	} else {
		s.truth = s.traj.StateAt(elapsed - s.cfg.GroundTime)
	}

	if s.samples > 0 {
		s.accel = r3.Scale(1/s.interval, r3.Sub(s.truth.Velocity, s.prevVel))
	}
	s.prevVel = s.truth.Velocity

	prev := s.heading
	v := s.truth.Velocity
	if math.Hypot(v.X, v.Y) > minTrackSpeed {
		s.heading = Track(v)
	}
	d := math.Mod(s.heading-prev+540, 360) - 180
	// Heading is clockwise, body yaw is counter-clockwise.
	s.yawRate = -d / s.interval
}

// attitude is level flight pointing along the heading.
func (s *Sensors) attitude() measure.Euler {
	return measure.Euler{Yaw: -s.heading * math.Pi / 180}
}

func (s *Sensors) inertial() schedule.Outcome {
	q := measure.QuaternionFrom(s.attitude())
	// Specific force: a resting accelerometer reads -1 g on the up axis.
	f := r3.Sub(r3.Scale(1/measure.Gravity, s.accel), r3.Vec{Z: 1})
	s.out.Accelerometer.Write(measure.NewReading(measure.RotateInverse(q, f), AccelSensitivity))
	gyro := r3.Add(r3.Vec{Z: s.yawRate}, s.cfg.GyroBiasDps)
	s.out.Gyroscope.Write(measure.NewReading(gyro, GyroSensitivity))
	return schedule.Ran
}

func (s *Sensors) magnetometer() schedule.Outcome {
	q := measure.QuaternionFrom(s.attitude())
	s.out.Magnetometer.Write(measure.NewReading(measure.RotateInverse(q, s.field), MagSensitivity))
	return schedule.Ran
}

func (s *Sensors) barometer() schedule.Outcome {
	// Inverse of the ISA pressure altitude formula.
	p := 101325.0 * math.Pow(1-s.truth.AltM/44330.0, 5.255)
	s.out.Pressure.Write(measure.Pressure(p))
	return schedule.Ran
}

func (s *Sensors) gnss() schedule.Outcome {
	v := s.truth.Velocity
	moving := math.Hypot(v.X, v.Y) > minTrackSpeed
	s.out.GNSS.Write(measure.GNSSFix{
		Fixed: true,
		Position: measure.Position{
			Latitude:  measure.LatitudeFromDegrees(s.truth.LatDeg),
			Longitude: measure.LongitudeFromDegrees(s.truth.LonDeg),
			Altitude:  measure.AltitudeFromMeters(s.truth.AltM),
		},
		Velocity: measure.Axes{
			X: int32(math.Round(v.X * 1000)),
			Y: int32(math.Round(v.Y * 1000)),
			Z: int32(math.Round(v.Z * 1000)),
		},
		Course:      measure.AngleFromDegrees(s.heading),
		CourseValid: moving,
	})
	return schedule.Ran
}

func (s *Sensors) battery() schedule.Outcome {
	s.out.Battery.Write(measure.Millivolts(s.cfg.BatteryMv))
	return schedule.Ran
}
