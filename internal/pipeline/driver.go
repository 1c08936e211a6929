package pipeline

import (
	log "github.com/sirupsen/logrus"

	"flightcore/internal/ahrs"
	"flightcore/internal/bulletin"
	"flightcore/internal/ins"
	"flightcore/internal/measure"
	"flightcore/internal/schedule"
)

// DriverConfig carries the rates and estimator settings of the pipeline.
type DriverConfig struct {
	SampleRate       int
	GNSSRate         int
	BaroRate         int
	MagnetometerRate int
	SpeedometerKp    float64
	IMU              ahrs.Config
}

// Driver runs the estimation pipeline once per sensor sample: IMU, then
// Speedometer, then Positioning, publishing each stage to the hub.
type Driver struct {
	rate schedule.Rate

	accel   *bulletin.Reader[measure.Reading]
	gyro    *bulletin.Reader[measure.Reading]
	mag     *bulletin.Reader[measure.Reading]
	heading *bulletin.Reader[measure.Angle]
	course  *bulletin.Reader[measure.Angle]

	magAge  int
	gnssAge int

	imu         *ahrs.IMU
	speedometer *ins.Speedometer
	positioning *ins.Positioning

	out   OutputWriters
	state ahrs.State
}

func NewDriver(cfg DriverConfig, h *Hub, out OutputWriters) *Driver {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1000
	}
	cfg.IMU.SampleRate = cfg.SampleRate
	return &Driver{
		rate:    schedule.Rate(cfg.SampleRate),
		accel:   h.Accelerometer.Reader(),
		gyro:    h.Gyroscope.Reader(),
		mag:     h.Magnetometer.Reader(),
		heading: h.Heading.Reader(),
		course:  h.Course.Reader(),
		magAge:  ins.AgingWindow(cfg.SampleRate, cfg.MagnetometerRate),
		gnssAge: ins.AgingWindow(cfg.SampleRate, cfg.GNSSRate),
		imu:     ahrs.NewIMU(cfg.IMU),
		speedometer: ins.NewSpeedometer(ins.SpeedometerConfig{
			SampleRate: cfg.SampleRate,
			GNSSRate:   cfg.GNSSRate,
			BaroRate:   cfg.BaroRate,
			Kp:         cfg.SpeedometerKp,
		}, h.GNSSVelocity.Reader(), h.VerticalSpeed.Reader()),
		positioning: ins.NewPositioning(cfg.SampleRate, h.GNSSPosition.Reader(), h.Altitude.Reader()),
		out:         out,
	}
}

func (d *Driver) Rate() schedule.Rate { return d.rate }

// Schedule is NotReady until both inertial sensors have reported. A sample
// that produces no fused output leaves the published outputs untouched.
func (d *Driver) Schedule() schedule.Outcome {
	accel, ok := d.accel.GetLast()
	if !ok {
		return schedule.NotReady
	}
	gyro, ok := d.gyro.GetLast()
	if !ok {
		return schedule.NotReady
	}

	updated := d.imu.Update(accel, gyro, d.correction())
	if s := d.imu.Calibration().State(); s != d.state {
		log.WithField("component", "pipeline").Infof("gyro calibration %s -> %s", d.state, s)
		d.state = s
	}
	if !updated {
		return schedule.Ran
	}

	d.out.Quaternion.Write(d.imu.Quaternion())
	d.out.Attitude.Write(d.imu.Attitude())
	v := d.speedometer.Update(d.imu.Acceleration())
	d.out.Velocity.Write(v)
	p, disp := d.positioning.Update(v)
	d.out.Position.Write(p)
	d.out.Displacement.Write(disp)
	return schedule.Ran
}

// correction prefers a fresh magnetometer sample, then heading, then course.
func (d *Driver) correction() ahrs.Correction {
	if m, ok := d.mag.GetAgingLast(d.magAge); ok {
		return ahrs.Magnetism(m.Vec())
	}
	if h, ok := d.heading.GetAgingLast(d.gnssAge); ok {
		return ahrs.Heading(h.Degrees())
	}
	if c, ok := d.course.GetAgingLast(d.gnssAge); ok {
		return ahrs.Heading(c.Degrees())
	}
	return nil
}

// IMU exposes the attitude estimator, for status reporting.
func (d *Driver) IMU() *ahrs.IMU { return d.imu }

// Positioning exposes the dead-reckoning state.
func (d *Driver) Positioning() *ins.Positioning { return d.positioning }
