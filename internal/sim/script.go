package sim

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// FlightScript is a deterministic, keyframe-driven flight description.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	keyframes:
//	  - t: 0s
//	    lat_deg: 45.0
//	    lon_deg: -122.0
//	    alt_m: 900
//	    ground_mps: 45
//	    track_deg: 90
//
// Keyframes must be sorted by time and use non-decreasing t values.
type FlightScript struct {
	Version   int           `yaml:"version"`
	Duration  time.Duration `yaml:"duration"`
	Keyframes []Keyframe    `yaml:"keyframes"`
}

// Keyframe is a time-stamped flight state.
type Keyframe struct {
	T         time.Duration `yaml:"t"`
	LatDeg    float64       `yaml:"lat_deg"`
	LonDeg    float64       `yaml:"lon_deg"`
	AltM      float64       `yaml:"alt_m"`
	GroundMps float64       `yaml:"ground_mps"`
	TrackDeg  float64       `yaml:"track_deg"`
}

// Script is the validated, runtime representation of a FlightScript.
type Script struct {
	keyframes []Keyframe
	// Derived duration (script.Duration or max keyframe time).
	duration time.Duration
	loop     bool
}

// LoadFlightScript reads and unmarshals a YAML flight script from path.
func LoadFlightScript(path string) (FlightScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FlightScript{}, err
	}
	return ParseFlightScriptYAML(b)
}

// ParseFlightScriptYAML parses a YAML flight script.
func ParseFlightScriptYAML(b []byte) (FlightScript, error) {
	var s FlightScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return FlightScript{}, err
	}
	return s, nil
}

// NewScript validates fs. With loop set, elapsed time wraps around the
// duration; otherwise it is clamped to it.
func NewScript(fs FlightScript, loop bool) (*Script, error) {
	if fs.Version == 0 {
		fs.Version = 1
	}
	if fs.Version != 1 {
		return nil, fmt.Errorf("unsupported flight script version %d", fs.Version)
	}
	if len(fs.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i := range fs.Keyframes {
		if fs.Keyframes[i].T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && fs.Keyframes[i].T < fs.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
	}

	dur := fs.Duration
	if dur <= 0 {
		dur = fs.Keyframes[len(fs.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return &Script{keyframes: fs.Keyframes, duration: dur, loop: loop}, nil
}

// Duration returns the effective script duration.
func (s *Script) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// StateAt interpolates the keyframes at elapsed. Vertical speed is the
// climb rate of the current segment.
func (s *Script) StateAt(elapsed time.Duration) State {
	if s == nil {
		return State{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.loop {
		elapsed = elapsed % s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	k0, k1, alpha := selectSegment(s.keyframes, elapsed)
	gs := lerp(k0.GroundMps, k1.GroundMps, alpha)
	trk := lerpAngleDeg(k0.TrackDeg, k1.TrackDeg, alpha) * math.Pi / 180

	var vu float64
	if dt := (k1.T - k0.T).Seconds(); dt > 0 {
		vu = (k1.AltM - k0.AltM) / dt
	}
	return State{
		LatDeg:   lerp(k0.LatDeg, k1.LatDeg, alpha),
		LonDeg:   lerp(k0.LonDeg, k1.LonDeg, alpha),
		AltM:     lerp(k0.AltM, k1.AltM, alpha),
		Velocity: r3.Vec{X: gs * math.Sin(trk), Y: gs * math.Cos(trk), Z: vu},
	}
}

func selectSegment(kfs []Keyframe, t time.Duration) (Keyframe, Keyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	return k0, k1, math.Max(0, math.Min(1, alpha))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpAngleDeg(a0, a1, t float64) float64 {
	// Shortest-path interpolation across wraparound.
	norm := func(x float64) float64 {
		x = math.Mod(x, 360)
		if x < 0 {
			x += 360
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}
