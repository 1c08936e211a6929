//go:build linux

package tick

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long Wait blocks before rechecking ctx.
const pollTimeoutMs = 100

// Timerfd is a Source backed by a CLOCK_MONOTONIC timerfd.
type Timerfd struct {
	fd int
}

func NewTimerfd(rate int) (*Timerfd, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("tick: timerfd_create: %w", err)
	}
	ts := unix.NsecToTimespec(Period(rate).Nanoseconds())
	spec := unix.ItimerSpec{Interval: ts, Value: ts}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("tick: timerfd_settime: %w", err)
	}
	return &Timerfd{fd: fd}, nil
}

func (t *Timerfd) Wait(ctx context.Context) (uint64, error) {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	var buf [8]byte
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, fmt.Errorf("tick: poll: %w", err)
		}
		if n == 0 {
			continue
		}
		if _, err := unix.Read(t.fd, buf[:]); err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return 0, fmt.Errorf("tick: read timerfd: %w", err)
		}
		// Expiration count in host byte order.
		return binary.NativeEndian.Uint64(buf[:]), nil
	}
}

func (t *Timerfd) Close() error {
	return unix.Close(t.fd)
}
