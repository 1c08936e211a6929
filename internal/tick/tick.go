// Package tick drives the master periodic tick from an OS timer.
package tick

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Source blocks until the next period elapses.
type Source interface {
	// Wait returns the number of periods elapsed since the previous call,
	// at least 1, or the context error.
	Wait(ctx context.Context) (uint64, error)
	Close() error
}

const (
	KindAuto    = "auto"
	KindTimerfd = "timerfd"
	KindClock   = "clock"
)

// ErrUnsupported is returned for a source kind the platform lacks.
var ErrUnsupported = errors.New("tick: source not supported on this platform")

// Period returns the tick period of rate Hz.
func Period(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(rate)
}

// New opens a source of the requested kind. KindAuto prefers timerfd and
// falls back to the wall clock.
func New(kind string, rate int) (Source, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("tick: rate %d must be positive", rate)
	}
	switch kind {
	case KindTimerfd:
		src, err := NewTimerfd(rate)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindClock:
		return NewClock(nil, rate), nil
	case "", KindAuto:
		src, err := NewTimerfd(rate)
		if err == nil {
			return src, nil
		}
		return NewClock(nil, rate), nil
	default:
		return nil, fmt.Errorf("tick: unknown source %q", kind)
	}
}

// Stats counts delivered and missed periods.
type Stats struct {
	Ticks  uint64
	Missed uint64
}

// Loop calls fn once per delivered tick. Periods that elapse while fn is
// still running are counted as missed, not replayed.
type Loop struct {
	src    Source
	ticks  atomic.Uint64
	missed atomic.Uint64
}

func NewLoop(src Source) *Loop { return &Loop{src: src} }

// Run blocks until ctx is done or the source fails.
func (l *Loop) Run(ctx context.Context, fn func()) error {
	for {
		n, err := l.src.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if n > 1 {
			l.missed.Add(n - 1)
		}
		l.ticks.Inc()
		fn()
	}
}

func (l *Loop) Stats() Stats {
	return Stats{Ticks: l.ticks.Load(), Missed: l.missed.Load()}
}
