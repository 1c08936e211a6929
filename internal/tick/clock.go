package tick

import (
	"context"

	"github.com/benbjohnson/clock"
)

// Clock is a Source backed by a clock.Ticker. It never reports missed
// periods; the ticker drops them.
type Clock struct {
	ticker *clock.Ticker
}

// NewClock ticks at rate Hz on clk, or on the wall clock when clk is nil.
func NewClock(clk clock.Clock, rate int) *Clock {
	if clk == nil {
		clk = clock.New()
	}
	return &Clock{ticker: clk.Ticker(Period(rate))}
}

func (c *Clock) Wait(ctx context.Context) (uint64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-c.ticker.C:
		return 1, nil
	}
}

func (c *Clock) Close() error {
	c.ticker.Stop()
	return nil
}
