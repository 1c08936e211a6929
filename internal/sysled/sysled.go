// Package sysled blinks a status LED with a pattern that reflects the gyro
// calibration phase.
package sysled

import (
	"go.uber.org/atomic"

	"flightcore/internal/ahrs"
	"flightcore/internal/schedule"
)

// Pin is a digital output.
type Pin interface {
	SetValue(v int) error
	Close() error
}

// StateSource reports the calibration phase to display.
type StateSource interface {
	State() ahrs.State
}

// LED toggles its pin every halfPeriod ticks. The half period shortens
// while the gyro is still calibrating.
type LED struct {
	rate   schedule.Rate
	pin    Pin
	status StateSource

	ticks  int
	on     bool
	errors atomic.Uint64
}

func New(rate schedule.Rate, pin Pin, status StateSource) *LED {
	return &LED{rate: rate, pin: pin, status: status}
}

func (l *LED) Rate() schedule.Rate { return l.rate }

func (l *LED) Schedule() schedule.Outcome {
	l.ticks++
	if l.ticks < l.halfPeriod() {
		return schedule.Ran
	}
	l.ticks = 0
	l.on = !l.on
	v := 0
	if l.on {
		v = 1
	}
	if err := l.pin.SetValue(v); err != nil {
		l.errors.Inc()
	}
	return schedule.Ran
}

// halfPeriod is in ticks: every tick while calibrating, every other tick
// while validating, and a 1 Hz blink once calibrated.
func (l *LED) halfPeriod() int {
	state := ahrs.Calibrated
	if l.status != nil {
		state = l.status.State()
	}
	switch state {
	case ahrs.Calibrating:
		return 1
	case ahrs.Validating:
		return 2
	default:
		if n := int(l.rate) / 2; n > 1 {
			return n
		}
		return 1
	}
}

// On reports the last value written.
func (l *LED) On() bool { return l.on }

// Errors counts failed pin writes.
func (l *LED) Errors() uint64 { return l.errors.Load() }

// Close switches the LED off and releases the pin.
func (l *LED) Close() error {
	_ = l.pin.SetValue(0)
	return l.pin.Close()
}
