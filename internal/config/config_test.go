package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := RatesConfig{Master: 1000, Sample: 1000, GNSS: 10, Baro: 50, Magnetometer: 100, Telemetry: 1, LED: 10}
	if diff := cmp.Diff(want, cfg.Rates); diff != "" {
		t.Fatalf("rates mismatch (-want +got):\n%s", diff)
	}
	if cfg.LogLevel != "info" || cfg.Tick.Source != "auto" {
		t.Fatalf("log_level=%q tick.source=%q", cfg.LogLevel, cfg.Tick.Source)
	}
	if cfg.IMU.Accelerometer.Gain != (Vec3{1, 1, 1}) || cfg.IMU.Magnetometer.Gain != (Vec3{1, 1, 1}) {
		t.Fatalf("expected unit gains")
	}
	if cfg.IMU.Mahony.Kp <= 0 {
		t.Fatalf("expected mahony kp default")
	}
	// Calibration at 1 kHz takes 2 s; the simulator stays on the ground for 3.
	if cfg.Sim.GroundTime != 3*time.Second {
		t.Fatalf("ground_time=%s want 3s", cfg.Sim.GroundTime)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefault_MatchesEmptyLoad(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("default mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
tick:
  source: clock
rates:
  master: 500
  sample: 250
  gnss: 5
  baro: 25
  magnetometer: 50
imu:
  accelerometer:
    bias: [0.01, -0.02, 0.03]
    gain: [1.01, 0.99, 1.0]
  mahony:
    kp: 2
    ki: 0.05
  declination_deg: 3.5
  calibration_samples: 100
  orientation:
    forward_axis: 1
    gravity_in_sensor: [0, 1, 0]
ins:
  speedometer:
    kp: 0.25
telemetry:
  enable: true
  dest: '127.0.0.1:4001'
led:
  enable: true
  pin: 17
sim:
  enable: true
  center_lat_deg: 47.5
  center_lon_deg: 8.5
  period: 60s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Rates.Telemetry != 1 || cfg.Rates.Sample != 250 {
		t.Fatalf("rates=%+v", cfg.Rates)
	}
	if cfg.LED.Chip != "gpiochip0" || cfg.LED.Pin != 17 {
		t.Fatalf("led=%+v", cfg.LED)
	}

	a, err := cfg.IMU.AHRS(cfg.Rates.Sample)
	if err != nil {
		t.Fatalf("AHRS() error: %v", err)
	}
	if a.SampleRate != 250 || a.CalibrationSamples != 100 || a.Kp != 2 || a.Ki != 0.05 || a.DeclinationDeg != 3.5 {
		t.Fatalf("ahrs config=%+v", a)
	}
	if diff := cmp.Diff(r3.Vec{X: 0.01, Y: -0.02, Z: 0.03}, a.AccelBias); diff != "" {
		t.Fatalf("accel bias mismatch (-want +got):\n%s", diff)
	}
	if !a.Mount.Set() {
		t.Fatalf("expected mount from orientation")
	}
	// (200 + 250) samples at 250 Hz.
	if cfg.Sim.GroundTime != 1800*time.Millisecond {
		t.Fatalf("ground_time=%s want 1.8s", cfg.Sim.GroundTime)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "LogLevel",
			body: "log_level: loud\n",
			want: "log_level must be one of trace, debug, info, warn, error",
		},
		{
			name: "TickSource",
			body: "tick:\n  source: sundial\n",
			want: "tick.source must be one of auto, timerfd, clock",
		},
		{
			name: "RateAboveMaster",
			body: "rates:\n  master: 100\n  sample: 200\n",
			want: "rates.sample must be in (0, rates.master]",
		},
		{
			name: "RateDoesNotDivideMaster",
			body: "rates:\n  master: 1000\n  gnss: 3\n",
			want: "rates.gnss must divide rates.master (1000)",
		},
		{
			name: "RateDoesNotDivideSample",
			body: "rates:\n  master: 1000\n  sample: 250\n  baro: 100\n",
			want: "rates.gnss, rates.baro and rates.magnetometer must divide rates.sample (250)",
		},
		{
			name: "NegativeGain",
			body: "imu:\n  mahony:\n    kp: -1\n",
			want: "imu.mahony.kp and imu.mahony.ki must be >= 0",
		},
		{
			name: "ZeroAxisGain",
			body: "imu:\n  accelerometer:\n    gain: [1, 0, 1]\n",
			want: "imu.accelerometer.gain[1] must not be 0",
		},
		{
			name: "Declination",
			body: "imu:\n  declination_deg: 200\n",
			want: "imu.declination_deg must be in [-180, 180]",
		},
		{
			name: "VerticalForwardAxis",
			body: "imu:\n  orientation:\n    forward_axis: 3\n",
			want: "imu.orientation: ahrs: forward axis nearly vertical; try again",
		},
		{
			name: "TelemetryRequiresDest",
			body: "telemetry:\n  enable: true\n",
			want: "telemetry.dest is required when telemetry.enable is true",
		},
		{
			name: "SpeedometerKp",
			body: "ins:\n  speedometer:\n    kp: -0.1\n",
			want: "ins.speedometer.kp must be >= 0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "rates:\n  master: 1000\n  bogus: 1\n")
	_, err := Load(path)
	requireErrEq(t, err, "config contains unknown fields: field bogus not found in type config.RatesConfig")
}
