// Package schedule drives many independently rated periodic units from a
// single master tick without per-unit timers.
package schedule

import (
	"fmt"

	"go.uber.org/atomic"
)

// Rate is a frequency in Hz.
type Rate int

// Outcome is the result of one Schedule call.
type Outcome int

const (
	// NotReady leaves the unit due; it is retried on every following tick
	// until it reports Ran.
	NotReady Outcome = iota
	// Ran resets the unit's elapsed counter.
	Ran
)

func (o Outcome) String() string {
	switch o {
	case Ran:
		return "ran"
	case NotReady:
		return "not-ready"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Schedulable is one periodic unit of work.
//
// Schedule must not block. Faults are reported as NotReady; a panic is
// recovered by the Scheduler and counted, but should never be relied upon.
type Schedulable interface {
	Rate() Rate
	Schedule() Outcome
}

// Func adapts a function to Schedulable.
type Func struct {
	Hz Rate
	Fn func() Outcome
}

func (f Func) Rate() Rate        { return f.Hz }
func (f Func) Schedule() Outcome { return f.Fn() }

type task struct {
	unit     Schedulable
	interval int64
	elapsed  atomic.Int64
	runs     atomic.Uint64
}

// Scheduler multiplexes its units onto one master tick.
type Scheduler struct {
	rate  Rate
	tasks []task

	running  atomic.Bool
	ticks    atomic.Uint64
	overruns atomic.Uint64
	faults   atomic.Uint64
}

// New builds a scheduler ticking at masterRate. Every unit's rate must be
// positive and divide masterRate; a unit that does not divide it runs at
// masterRate/(masterRate/rate) instead. Invalid rates panic: construction
// happens once at init, Tick itself never panics.
func New(masterRate Rate, units ...Schedulable) *Scheduler {
	if masterRate <= 0 {
		panic(fmt.Sprintf("schedule: master rate %d must be positive", masterRate))
	}
	s := &Scheduler{rate: masterRate, tasks: make([]task, len(units))}
	for i, u := range units {
		r := u.Rate()
		if r <= 0 || r > masterRate {
			panic(fmt.Sprintf("schedule: unit %d rate %d outside (0, %d]", i, r, masterRate))
		}
		s.tasks[i].unit = u
		s.tasks[i].interval = int64(masterRate / r)
	}
	return s
}

// Tick advances every unit by one master tick and runs the due ones in
// registration order.
//
// If a previous Tick is still executing, the call only advances counters
// and returns; the work of that tick is dropped and counted as an overrun.
func (s *Scheduler) Tick() {
	for i := range s.tasks {
		s.tasks[i].elapsed.Inc()
	}
	s.ticks.Inc()

	if !s.running.CompareAndSwap(false, true) {
		s.overruns.Inc()
		return
	}
	defer s.running.Store(false)

	for i := range s.tasks {
		t := &s.tasks[i]
		if t.elapsed.Load() < t.interval {
			continue
		}
		if s.run(t) == Ran {
			t.elapsed.Store(0)
			t.runs.Inc()
		}
	}
}

func (s *Scheduler) run(t *task) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.faults.Inc()
			out = NotReady
		}
	}()
	return t.unit.Schedule()
}

// Rate returns the master rate, allowing a Scheduler to be nested inside
// another one.
func (s *Scheduler) Rate() Rate { return s.rate }

// Schedule runs one Tick.
func (s *Scheduler) Schedule() Outcome {
	s.Tick()
	return Ran
}

// Stats is a point-in-time view of scheduler counters.
type Stats struct {
	Ticks    uint64
	Overruns uint64
	Faults   uint64
	// Runs holds the number of Ran outcomes per unit, in registration order.
	Runs []uint64
}

// Stats allocates; do not call it from a Schedulable running at master rate.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Ticks:    s.ticks.Load(),
		Overruns: s.overruns.Load(),
		Faults:   s.faults.Load(),
		Runs:     make([]uint64, len(s.tasks)),
	}
	for i := range s.tasks {
		st.Runs[i] = s.tasks[i].runs.Load()
	}
	return st
}

// Overruns returns the number of ticks dropped because of re-entry.
func (s *Scheduler) Overruns() uint64 { return s.overruns.Load() }

// Len returns the number of registered units.
func (s *Scheduler) Len() int { return len(s.tasks) }
