// Package telemetry publishes a low-rate summary of the fused state.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"flightcore/internal/ahrs"
	"flightcore/internal/bulletin"
	"flightcore/internal/measure"
	"flightcore/internal/pipeline"
	"flightcore/internal/schedule"
)

// Sink receives encoded frames.
type Sink interface {
	Send(payload []byte) error
}

// Frame is one telemetry record, encoded as JSON.
type Frame struct {
	Seq         uint64    `json:"seq"`
	Time        time.Time `json:"time"`
	Calibration string    `json:"calibration,omitempty"`

	Attitude *Attitude   `json:"attitude,omitempty"`
	Velocity *[3]float64 `json:"velocity_mps,omitempty"`
	Position *Position   `json:"position,omitempty"`
	// Displacement from the last reference fix, east-north-up in cm.
	Displacement *[3]int32 `json:"displacement_cm,omitempty"`
	BatteryMv    *uint16   `json:"battery_mv,omitempty"`

	Ticks    uint64 `json:"ticks"`
	Overruns uint64 `json:"overruns"`
	Faults   uint64 `json:"faults"`
}

type Attitude struct {
	Roll    float64 `json:"roll_deg"`
	Pitch   float64 `json:"pitch_deg"`
	Yaw     float64 `json:"yaw_deg"`
	Heading float64 `json:"heading_deg"`
}

type Position struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`
	AltM   float64 `json:"alt_m"`
}

// CalibrationState reports the gyro calibration phase.
type CalibrationState interface {
	State() ahrs.State
}

// Options are the optional collaborators of a Telemetry.
type Options struct {
	// Clock stamps frames; the wall clock when nil.
	Clock clock.Clock
	// Calibration, when set, is reported in every frame.
	Calibration CalibrationState
}

// Telemetry is a Schedulable that snapshots the hub outputs into a Frame and
// hands it to a Sink. Sink errors are logged once per failure streak.
type Telemetry struct {
	rate schedule.Rate
	sink Sink
	opts Options

	quaternion   *bulletin.Reader[quat.Number]
	attitude     *bulletin.Reader[measure.Euler]
	velocity     *bulletin.Reader[r3.Vec]
	position     *bulletin.Reader[measure.Position]
	displacement *bulletin.Reader[measure.Displacement]
	battery      *bulletin.Reader[measure.Millivolts]

	scheduler *schedule.Scheduler

	seq     uint64
	failing bool
	last    Frame
}

func New(rate schedule.Rate, h *pipeline.Hub, sink Sink, opts Options) *Telemetry {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Telemetry{
		rate:         rate,
		sink:         sink,
		opts:         opts,
		quaternion:   h.Quaternion.Reader(),
		attitude:     h.Attitude.Reader(),
		velocity:     h.Velocity.Reader(),
		position:     h.Position.Reader(),
		displacement: h.Displacement.Reader(),
		battery:      h.Battery.Reader(),
	}
}

func (t *Telemetry) Rate() schedule.Rate { return t.rate }

func (t *Telemetry) Schedule() schedule.Outcome {
	f := t.snapshot()
	t.last = f

	entry := log.WithField("component", "telemetry")
	if log.IsLevelEnabled(log.DebugLevel) {
		entry.WithField("seq", f.Seq).Debugf("ticks=%s overruns=%d calibration=%s",
			humanize.Comma(int64(f.Ticks)), f.Overruns, f.Calibration)
	}
	if t.sink == nil {
		return schedule.Ran
	}

	b, err := json.Marshal(f)
	if err != nil {
		entry.Errorf("encode frame: %v", err)
		return schedule.Ran
	}
	if err := t.sink.Send(b); err != nil {
		if !t.failing {
			entry.Warnf("send frame: %v", err)
		}
		t.failing = true
		return schedule.Ran
	}
	if t.failing {
		entry.Infof("send recovered after frame %d", f.Seq)
	}
	t.failing = false
	return schedule.Ran
}

func (t *Telemetry) snapshot() Frame {
	t.seq++
	f := Frame{Seq: t.seq, Time: t.opts.Clock.Now().UTC()}
	if t.opts.Calibration != nil {
		f.Calibration = t.opts.Calibration.State().String()
	}
	if e, ok := t.attitude.GetLast(); ok {
		a := &Attitude{Roll: e.Roll, Pitch: e.Pitch, Yaw: e.Yaw}
		if q, ok := t.quaternion.GetLast(); ok {
			a.Heading = measure.Heading(q)
		}
		f.Attitude = a
	}
	if v, ok := t.velocity.GetLast(); ok {
		f.Velocity = &[3]float64{v.X, v.Y, v.Z}
	}
	if p, ok := t.position.GetLast(); ok {
		f.Position = &Position{LatDeg: p.Latitude.Degrees(), LonDeg: p.Longitude.Degrees(), AltM: p.Altitude.Meters()}
	}
	if d, ok := t.displacement.GetLast(); ok {
		f.Displacement = &[3]int32{d.East, d.North, d.Up}
	}
	if mv, ok := t.battery.GetLast(); ok {
		v := uint16(mv)
		f.BatteryMv = &v
	}
	if t.scheduler != nil {
		st := t.scheduler.Stats()
		f.Ticks, f.Overruns, f.Faults = st.Ticks, st.Overruns, st.Faults
	}
	return f
}

// AttachScheduler reports the counters of s, usually the scheduler the
// Telemetry itself runs in.
func (t *Telemetry) AttachScheduler(s *schedule.Scheduler) { t.scheduler = s }

// Last returns the most recent frame.
func (t *Telemetry) Last() Frame { return t.last }
