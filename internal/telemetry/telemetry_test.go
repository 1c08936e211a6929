package telemetry

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/ahrs"
	"flightcore/internal/measure"
	"flightcore/internal/pipeline"
	"flightcore/internal/schedule"
)

type recordingSink struct {
	frames [][]byte
	err    error
}

func (s *recordingSink) Send(b []byte) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), b...))
	return nil
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

func TestTelemetry_EmptyHub(t *testing.T) {
	h, _ := newHub(t)
	sink := &recordingSink{}
	mock := clock.NewMock()
	tel := New(1, h, sink, Options{Clock: mock})

	if out := tel.Schedule(); out != schedule.Ran {
		t.Fatalf("outcome=%s", out)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("frames=%d want 1", len(sink.frames))
	}
	var f Frame
	if err := json.Unmarshal(sink.frames[0], &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Frame{Seq: 1, Time: mock.Now().UTC()}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestTelemetry_SnapshotsOutputs(t *testing.T) {
	h, w := newHub(t)
	cal := ahrs.NewCalibration(1)
	cal.Skip()
	tel := New(1, h, nil, Options{Clock: clock.NewMock(), Calibration: cal})
	sched := schedule.New(10, tel)
	tel.AttachScheduler(sched)

	w.Outputs.Attitude.Write(measure.Euler{Roll: 1, Pitch: 2, Yaw: -90})
	w.Outputs.Quaternion.Write(measure.QuaternionFrom(measure.Euler{Yaw: -math.Pi / 2}))
	w.Outputs.Velocity.Write(r3.Vec{X: 1, Y: 2, Z: 3})
	w.Outputs.Position.Write(measure.Position{
		Latitude:  measure.LatitudeFromDegrees(47.5),
		Longitude: measure.LongitudeFromDegrees(8.25),
		Altitude:  measure.AltitudeFromMeters(512.5),
	})
	w.Outputs.Displacement.Write(measure.Displacement{East: 10, North: -20, Up: 30})
	w.Sensors.Battery.Write(12400)

	for i := 0; i < 10; i++ {
		sched.Tick()
	}
	f := tel.Last()
	if f.Seq != 1 || f.Ticks != 10 || f.Calibration != "calibrated" {
		t.Fatalf("frame=%+v", f)
	}
	if f.Attitude == nil || f.Attitude.Yaw != -90 || f.Attitude.Heading < 89.99 || f.Attitude.Heading > 90.01 {
		t.Fatalf("attitude=%+v", f.Attitude)
	}
	if f.Velocity == nil || *f.Velocity != [3]float64{1, 2, 3} {
		t.Fatalf("velocity=%v", f.Velocity)
	}
	if f.Position == nil || f.Position.LatDeg != 47.5 || f.Position.LonDeg != 8.25 || f.Position.AltM != 512.5 {
		t.Fatalf("position=%+v", f.Position)
	}
	if f.Displacement == nil || *f.Displacement != [3]int32{10, -20, 30} {
		t.Fatalf("displacement=%v", f.Displacement)
	}
	if f.BatteryMv == nil || *f.BatteryMv != 12400 {
		t.Fatalf("battery=%v", f.BatteryMv)
	}
}

func TestTelemetry_SinkErrorsAreAbsorbed(t *testing.T) {
	h, _ := newHub(t)
	sink := &recordingSink{err: errors.New("unreachable")}
	tel := New(1, h, sink, Options{Clock: clock.NewMock()})
	for i := 0; i < 3; i++ {
		if out := tel.Schedule(); out != schedule.Ran {
			t.Fatalf("outcome=%s want ran on sink error", out)
		}
	}
	if !tel.failing {
		t.Fatalf("expected failing state")
	}
	sink.err = nil
	tel.Schedule()
	if tel.failing || len(sink.frames) != 1 {
		t.Fatalf("failing=%v frames=%d want recovered", tel.failing, len(sink.frames))
	}
	if tel.Last().Seq != 4 {
		t.Fatalf("seq=%d want 4", tel.Last().Seq)
	}
}

func TestTelemetry_TimestampsFollowClock(t *testing.T) {
	h, _ := newHub(t)
	mock := clock.NewMock()
	tel := New(1, h, nil, Options{Clock: mock})
	tel.Schedule()
	first := tel.Last().Time
	mock.Add(time.Second)
	tel.Schedule()
	if got := tel.Last().Time.Sub(first); got != time.Second {
		t.Fatalf("frame spacing=%s want 1s", got)
	}
}
