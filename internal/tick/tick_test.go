package tick

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestPeriod(t *testing.T) {
	if got := Period(1000); got != time.Millisecond {
		t.Fatalf("Period(1000)=%s want 1ms", got)
	}
	if got := Period(0); got != 0 {
		t.Fatalf("Period(0)=%s want 0", got)
	}
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	if _, err := New("sundial", 100); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := New(KindClock, 0); err == nil {
		t.Fatalf("expected error for zero rate")
	}
}

func TestClock_TicksWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	src := NewClock(mock, 100)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		mock.Add(10 * time.Millisecond)
		n, err := src.Wait(ctx)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if n != 1 {
			t.Fatalf("expirations=%d want 1", n)
		}
	}
}

func TestClock_WaitHonorsContext(t *testing.T) {
	src := NewClock(clock.NewMock(), 100)
	defer src.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

type scriptedSource struct {
	counts []uint64
	cancel context.CancelFunc
}

func (s *scriptedSource) Wait(ctx context.Context) (uint64, error) {
	if len(s.counts) == 0 {
		s.cancel()
		return 0, ctx.Err()
	}
	n := s.counts[0]
	s.counts = s.counts[1:]
	return n, nil
}

func (s *scriptedSource) Close() error { return nil }

func TestLoop_CountsMissedPeriods(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedSource{counts: []uint64{1, 3, 1, 2}, cancel: cancel}
	l := NewLoop(src)

	calls := 0
	if err := l.Run(ctx, func() { calls++ }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls=%d want 4", calls)
	}
	if st := l.Stats(); st.Ticks != 4 || st.Missed != 3 {
		t.Fatalf("stats=%+v want ticks=4 missed=3", st)
	}
}

type failingSource struct{}

func (failingSource) Wait(context.Context) (uint64, error) { return 0, errors.New("boom") }
func (failingSource) Close() error                         { return nil }

func TestLoop_PropagatesSourceError(t *testing.T) {
	l := NewLoop(failingSource{})
	if err := l.Run(context.Background(), func() {}); err == nil {
		t.Fatalf("expected source error")
	}
}
