package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"flightcore/internal/ahrs"
	"flightcore/internal/tick"
)

type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Tick      TickConfig      `yaml:"tick"`
	Rates     RatesConfig     `yaml:"rates"`
	IMU       IMUConfig       `yaml:"imu"`
	INS       INSConfig       `yaml:"ins"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LED       LEDConfig       `yaml:"led"`
	Sim       SimConfig       `yaml:"sim"`
}

type TickConfig struct {
	// Source is one of auto, timerfd or clock.
	Source string `yaml:"source"`
}

// RatesConfig holds task rates in Hz. Master must be a multiple of every
// other rate.
type RatesConfig struct {
	Master       int `yaml:"master"`
	Sample       int `yaml:"sample"`
	GNSS         int `yaml:"gnss"`
	Baro         int `yaml:"baro"`
	Magnetometer int `yaml:"magnetometer"`
	Telemetry    int `yaml:"telemetry"`
	LED          int `yaml:"led"`
}

// Vec3 is an x, y, z triple written as a YAML sequence.
type Vec3 [3]float64

func (v Vec3) R3() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

type SensorCalibration struct {
	Bias Vec3 `yaml:"bias"`
	Gain Vec3 `yaml:"gain"`
}

type MahonyConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
}

// OrientationConfig captures how the board is mounted. A zero ForwardAxis
// keeps sensor axes as body axes.
type OrientationConfig struct {
	ForwardAxis     int  `yaml:"forward_axis"`
	GravityInSensor Vec3 `yaml:"gravity_in_sensor"`
}

type IMUConfig struct {
	Accelerometer      SensorCalibration `yaml:"accelerometer"`
	Magnetometer       SensorCalibration `yaml:"magnetometer"`
	Mahony             MahonyConfig      `yaml:"mahony"`
	DeclinationDeg     float64           `yaml:"declination_deg"`
	CalibrationSamples int               `yaml:"calibration_samples"`
	Orientation        OrientationConfig `yaml:"orientation"`
}

type SpeedometerConfig struct {
	Kp float64 `yaml:"kp"`
}

type INSConfig struct {
	Speedometer SpeedometerConfig `yaml:"speedometer"`
}

type TelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type LEDConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Pin    int    `yaml:"pin"`
}

type SimConfig struct {
	Enable       bool          `yaml:"enable"`
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	GroundTime   time.Duration `yaml:"ground_time"`
	GyroBiasDps  Vec3          `yaml:"gyro_bias_dps"`
	BatteryMv    int           `yaml:"battery_mv"`
	// Script optionally replaces the orbit with a keyframe flight.
	Script string `yaml:"script"`
	Loop   bool   `yaml:"loop"`
}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejecting unknown fields, then defaults and validates.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", stripLines(te.Errors))
		}
		return Config{}, err
	}
	if err := cfg.DefaultAndValidate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	_ = cfg.DefaultAndValidate()
	return cfg
}

func stripLines(errs []string) string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		if strings.HasPrefix(e, "line ") {
			if i := strings.Index(e, ": "); i >= 0 {
				e = e[i+2:]
			}
		}
		out = append(out, e)
	}
	return strings.Join(out, "; ")
}

// DefaultAndValidate fills zero fields with defaults and rejects values the
// pipeline cannot run with.
func (c *Config) DefaultAndValidate() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level must be one of trace, debug, info, warn, error")
	}

	switch c.Tick.Source {
	case "":
		c.Tick.Source = tick.KindAuto
	case tick.KindAuto, tick.KindTimerfd, tick.KindClock:
	default:
		return fmt.Errorf("tick.source must be one of auto, timerfd, clock")
	}

	if err := c.Rates.defaultAndValidate(); err != nil {
		return err
	}
	if err := c.IMU.defaultAndValidate(); err != nil {
		return err
	}

	if c.INS.Speedometer.Kp == 0 {
		c.INS.Speedometer.Kp = 0.5
	}
	if c.INS.Speedometer.Kp < 0 {
		return fmt.Errorf("ins.speedometer.kp must be >= 0")
	}

	if c.Telemetry.Enable && c.Telemetry.Dest == "" {
		return fmt.Errorf("telemetry.dest is required when telemetry.enable is true")
	}

	if c.LED.Chip == "" {
		c.LED.Chip = "gpiochip0"
	}
	if c.LED.Pin < 0 {
		return fmt.Errorf("led.pin must be >= 0")
	}

	// Simulator defaults (safe even if disabled).
	if c.Sim.Period <= 0 {
		c.Sim.Period = 120 * time.Second
	}
	if c.Sim.RadiusM <= 0 {
		c.Sim.RadiusM = 900
	}
	if c.Sim.AltM == 0 {
		c.Sim.AltM = 900
	}
	if c.Sim.GroundTime <= 0 {
		// Two calibration phases plus one second.
		n := c.IMU.CalibrationSamples
		if n == 0 {
			n = c.Rates.Sample
		}
		c.Sim.GroundTime = time.Duration(2*n+c.Rates.Sample) * time.Second / time.Duration(c.Rates.Sample)
	}
	if c.Sim.BatteryMv == 0 {
		c.Sim.BatteryMv = 12600
	}
	if c.Sim.BatteryMv < 0 {
		return fmt.Errorf("sim.battery_mv must be > 0")
	}
	return nil
}

func (r *RatesConfig) defaultAndValidate() error {
	if r.Master == 0 {
		r.Master = 1000
	}
	if r.Sample == 0 {
		r.Sample = r.Master
	}
	if r.GNSS == 0 {
		r.GNSS = 10
	}
	if r.Baro == 0 {
		r.Baro = 50
	}
	if r.Magnetometer == 0 {
		r.Magnetometer = 100
	}
	if r.Telemetry == 0 {
		r.Telemetry = 1
	}
	if r.LED == 0 {
		r.LED = 10
	}
	if r.Master < 0 {
		return fmt.Errorf("rates.master must be > 0")
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"sample", r.Sample},
		{"gnss", r.GNSS},
		{"baro", r.Baro},
		{"magnetometer", r.Magnetometer},
		{"telemetry", r.Telemetry},
		{"led", r.LED},
	} {
		if f.v < 0 || f.v > r.Master {
			return fmt.Errorf("rates.%s must be in (0, rates.master]", f.name)
		}
		if r.Master%f.v != 0 {
			return fmt.Errorf("rates.%s must divide rates.master (%d)", f.name, r.Master)
		}
	}
	if r.Sample%r.GNSS != 0 || r.Sample%r.Baro != 0 || r.Sample%r.Magnetometer != 0 {
		return fmt.Errorf("rates.gnss, rates.baro and rates.magnetometer must divide rates.sample (%d)", r.Sample)
	}
	return nil
}

func (m *IMUConfig) defaultAndValidate() error {
	if m.Accelerometer.Gain == (Vec3{}) {
		m.Accelerometer.Gain = Vec3{1, 1, 1}
	}
	if m.Magnetometer.Gain == (Vec3{}) {
		m.Magnetometer.Gain = Vec3{1, 1, 1}
	}
	for i, g := range m.Accelerometer.Gain {
		if g == 0 {
			return fmt.Errorf("imu.accelerometer.gain[%d] must not be 0", i)
		}
	}
	for i, g := range m.Magnetometer.Gain {
		if g == 0 {
			return fmt.Errorf("imu.magnetometer.gain[%d] must not be 0", i)
		}
	}
	if m.Mahony.Kp == 0 && m.Mahony.Ki == 0 {
		m.Mahony.Kp = 0.5
		m.Mahony.Ki = 0.001
	}
	if m.Mahony.Kp < 0 || m.Mahony.Ki < 0 {
		return fmt.Errorf("imu.mahony.kp and imu.mahony.ki must be >= 0")
	}
	if m.DeclinationDeg < -180 || m.DeclinationDeg > 180 {
		return fmt.Errorf("imu.declination_deg must be in [-180, 180]")
	}
	if m.CalibrationSamples < 0 {
		return fmt.Errorf("imu.calibration_samples must be >= 0")
	}
	if m.Orientation.ForwardAxis != 0 {
		if _, err := m.Mount(); err != nil {
			return fmt.Errorf("imu.orientation: %w", err)
		}
	}
	return nil
}

// Mount builds the sensor-to-body alignment.
func (m IMUConfig) Mount() (ahrs.Mount, error) {
	if m.Orientation.ForwardAxis == 0 {
		return ahrs.IdentityMount(), nil
	}
	g := m.Orientation.GravityInSensor
	if g == (Vec3{}) {
		g = Vec3{0, 0, -1}
	}
	return ahrs.NewMount(m.Orientation.ForwardAxis, g.R3())
}

// AHRS converts to the estimator configuration for sampleRate.
func (m IMUConfig) AHRS(sampleRate int) (ahrs.Config, error) {
	mount, err := m.Mount()
	if err != nil {
		return ahrs.Config{}, err
	}
	return ahrs.Config{
		SampleRate:         sampleRate,
		CalibrationSamples: m.CalibrationSamples,
		AccelBias:          m.Accelerometer.Bias.R3(),
		AccelGain:          m.Accelerometer.Gain.R3(),
		MagBias:            m.Magnetometer.Bias.R3(),
		MagGain:            m.Magnetometer.Gain.R3(),
		Kp:                 m.Mahony.Kp,
		Ki:                 m.Mahony.Ki,
		DeclinationDeg:     m.DeclinationDeg,
		Mount:              mount,
	}, nil
}
