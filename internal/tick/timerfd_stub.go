//go:build !linux

package tick

import "context"

type Timerfd struct{}

func NewTimerfd(rate int) (*Timerfd, error) { return nil, ErrUnsupported }

func (*Timerfd) Wait(ctx context.Context) (uint64, error) { return 0, ErrUnsupported }
func (*Timerfd) Close() error                             { return nil }
