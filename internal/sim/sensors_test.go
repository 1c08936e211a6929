package sim

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/ahrs"
	"flightcore/internal/ins"
	"flightcore/internal/measure"
	"flightcore/internal/pipeline"
	"flightcore/internal/schedule"
)

func testOrbit() Orbit {
	return Orbit{CenterLatDeg: 47.5, CenterLonDeg: 8.5, AltM: 900, RadiusM: 900, Period: 120 * time.Second}
}

func newHub(t *testing.T) (*pipeline.Hub, *pipeline.Writers) {
	t.Helper()
	h := pipeline.NewHub()
	w, err := h.Writers()
	if err != nil {
		t.Fatalf("Writers: %v", err)
	}
	return h, w
}

func TestSensors_GroundPhase(t *testing.T) {
	h, w := newHub(t)
	s := NewSensors(SensorsConfig{
		SampleRate:       100,
		GNSSRate:         10,
		BaroRate:         50,
		MagnetometerRate: 100,
		BatteryRate:      10,
		GroundTime:       time.Second,
		GyroBiasDps:      r3.Vec{X: 0.5},
		BatteryMv:        12600,
	}, testOrbit(), w.Sensors)
	accel, gyro, fix := h.Accelerometer.Reader(), h.Gyroscope.Reader(), h.GNSS.Reader()
	mag, baro, batt := h.Magnetometer.Reader(), h.Pressure.Reader(), h.Battery.Reader()

	for i := 0; i < 50; i++ {
		s.Schedule()
	}
	if s.Elapsed() != 500*time.Millisecond {
		t.Fatalf("elapsed=%s want 500ms", s.Elapsed())
	}

	if a, ok := accel.GetLast(); !ok || a.Axes != (measure.Axes{Z: -AccelSensitivity}) {
		t.Fatalf("accel=%+v ok=%v want resting -1 g", a, ok)
	}
	if g, ok := gyro.GetLast(); !ok || g.Axes != (measure.Axes{X: 8}) {
		t.Fatalf("gyro=%+v ok=%v want bias only", g, ok)
	}
	if m, ok := mag.GetLast(); !ok || m.Vec().Y <= 0 || m.Vec().Z >= 0 {
		t.Fatalf("mag=%+v ok=%v want north and down", m, ok)
	}
	if b, ok := batt.GetLast(); !ok || b != 12600 {
		t.Fatalf("battery=%v ok=%v", b, ok)
	}

	p, ok := baro.GetLast()
	if !ok {
		t.Fatalf("no pressure")
	}
	if alt := ins.PressureAltitude(p).Meters(); math.Abs(alt-testOrbit().StateAt(0).AltM) > 0.05 {
		t.Fatalf("pressure altitude=%v", alt)
	}

	f, ok := fix.GetLast()
	if !ok || !f.Fixed {
		t.Fatalf("fix=%+v ok=%v", f, ok)
	}
	start := testOrbit().StateAt(0)
	if f.Position.Latitude != measure.LatitudeFromDegrees(start.LatDeg) || f.Velocity != (measure.Axes{}) || f.CourseValid {
		t.Fatalf("fix=%+v want stationary at orbit start", f)
	}
}

func TestSensors_BatteryFirstWriteAfterOneInterval(t *testing.T) {
	h, w := newHub(t)
	s := NewSensors(SensorsConfig{SampleRate: 100, BatteryMv: 12000}, testOrbit(), w.Sensors)
	batt := h.Battery.Reader()

	for i := 1; i <= 100; i++ {
		s.Schedule()
		b, ok := batt.GetLast()
		if i < 100 && ok {
			t.Fatalf("battery published after %d samples", i)
		}
		if i == 100 && (!ok || b != 12000) {
			t.Fatalf("battery=%v ok=%v after 100 samples", b, ok)
		}
	}
}

func TestSensors_FlightPhase(t *testing.T) {
	h, w := newHub(t)
	s := NewSensors(SensorsConfig{SampleRate: 100, GNSSRate: 10, GroundTime: time.Second}, testOrbit(), w.Sensors)
	fix := h.GNSS.Reader()

	for i := 0; i < 300; i++ {
		s.Schedule()
	}
	truth := s.Truth()
	if math.Hypot(truth.Velocity.X, truth.Velocity.Y) < 10 {
		t.Fatalf("velocity=%+v want flying", truth.Velocity)
	}
	f, ok := fix.GetLast()
	if !ok || !f.CourseValid {
		t.Fatalf("fix=%+v ok=%v want moving", f, ok)
	}
	if d := math.Abs(f.Course.Degrees() - Track(f.VelocityMetersPerSecond())); d > 0.5 && d < 359.5 {
		t.Fatalf("course=%v track=%v", f.Course.Degrees(), Track(f.VelocityMetersPerSecond()))
	}
}

func TestSensors_AttitudeMatchesHeading(t *testing.T) {
	h, w := newHub(t)
	s := NewSensors(SensorsConfig{SampleRate: 100, MagnetometerRate: 100}, testOrbit(), w.Sensors)
	mag := h.Magnetometer.Reader()
	for i := 0; i < 1000; i++ {
		s.Schedule()
	}
	m, _ := mag.GetLast()
	// Heading from the horizontal field seen in the body frame.
	got := math.Mod(math.Atan2(-m.Vec().X, m.Vec().Y)*180/math.Pi+360, 360)
	if d := math.Abs(got - s.Heading()); d > 1 && d < 359 {
		t.Fatalf("magnetic heading=%v true heading=%v", got, s.Heading())
	}
}

// A full system loop with the simulator driving the pipeline tracks the
// true position.
func TestSensors_DrivesPipeline(t *testing.T) {
	h, w := newHub(t)
	const rate = 100
	s := NewSensors(SensorsConfig{
		SampleRate:       rate,
		GNSSRate:         10,
		BaroRate:         50,
		MagnetometerRate: 50,
		GroundTime:       3 * time.Second,
		GyroBiasDps:      r3.Vec{X: 0.3, Y: -0.2, Z: 0.1},
	}, testOrbit(), w.Sensors)
	d := pipeline.NewDriver(pipeline.DriverConfig{
		SampleRate:       rate,
		GNSSRate:         10,
		BaroRate:         50,
		MagnetometerRate: 50,
		SpeedometerKp:    0.5,
		IMU:              ahrs.Config{Kp: 0.5},
	}, h, w.Outputs)
	sched := schedule.New(rate,
		s,
		pipeline.NewGNSSSplitter(10, h, w),
		ins.NewAltimeter(50, h.Pressure.Reader(), w.Altitude, w.VerticalSpeed),
		d,
	)
	pos := h.Position.Reader()

	for i := 0; i < 8*rate; i++ {
		sched.Tick()
	}
	if st := d.IMU().Calibration().State(); st != ahrs.Calibrated {
		t.Fatalf("calibration=%s want calibrated", st)
	}
	if b := d.IMU().Calibration().Bias(); math.Abs(b.X-0.3) > 0.07 || math.Abs(b.Y+0.2) > 0.07 {
		t.Fatalf("bias=%v want ~(0.3, -0.2, 0.1)", b)
	}

	p, ok := pos.GetLast()
	if !ok {
		t.Fatalf("no position")
	}
	truth := s.Truth()
	want := measure.Position{
		Latitude:  measure.LatitudeFromDegrees(truth.LatDeg),
		Longitude: measure.LongitudeFromDegrees(truth.LonDeg),
		Altitude:  measure.AltitudeFromMeters(truth.AltM),
	}
	off := p.Sub(want)
	if math.Hypot(off.X, off.Y) > 100 || math.Abs(off.Z) > 10 {
		t.Fatalf("position off by %+v m", off)
	}
	if st := sched.Stats(); st.Overruns != 0 || st.Faults != 0 {
		t.Fatalf("stats=%+v", st)
	}
}
