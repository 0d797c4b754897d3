package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/meshmonitor/meshmonitor/internal/session"
)

type fakeSender struct {
	state session.State
	sends atomic.Int32
}

func (f *fakeSender) State() session.State { return f.state }

func (f *fakeSender) Send(ctx context.Context, packetID uint32, payload []byte) error {
	f.sends.Add(1)
	return nil
}

func (f *fakeSender) SendNoAck(ctx context.Context, payload []byte) error {
	f.sends.Add(1)
	return nil
}

func TestSchedulerSkipsWhenNotConnected(t *testing.T) {
	sender := &fakeSender{state: session.Connecting}
	s := New(sender, zap.NewNop())

	var ran atomic.Bool
	s.Add(&Job{
		Name:     "test",
		Interval: time.Millisecond,
		Enabled:  true,
		NextRun:  time.Now().Add(-time.Second),
		Fn: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	})

	s.tick(context.Background(), time.Now())
	if ran.Load() {
		t.Fatal("job ran while session was not connected")
	}
}

func TestSchedulerRunsDueEnabledJob(t *testing.T) {
	sender := &fakeSender{state: session.Connected}
	s := New(sender, zap.NewNop())

	var runs atomic.Int32
	s.Add(&Job{
		Name:     "test",
		Interval: time.Hour,
		Enabled:  true,
		NextRun:  time.Now().Add(-time.Second),
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	now := time.Now()
	s.tick(context.Background(), now)
	if runs.Load() != 1 {
		t.Fatalf("runs = %d, want 1", runs.Load())
	}

	// NextRun should have advanced past now, so an immediate re-tick at the
	// same instant does not fire it again.
	s.tick(context.Background(), now)
	if runs.Load() != 1 {
		t.Fatalf("runs = %d after second tick, want still 1", runs.Load())
	}
}

func TestSchedulerSkipsDisabledJob(t *testing.T) {
	sender := &fakeSender{state: session.Connected}
	s := New(sender, zap.NewNop())

	var ran atomic.Bool
	s.Add(&Job{
		Name:     "test",
		Interval: time.Hour,
		Enabled:  false,
		NextRun:  time.Now().Add(-time.Second),
		Fn: func(ctx context.Context) error {
			ran.Store(true)
			return nil
		},
	})

	s.tick(context.Background(), time.Now())
	if ran.Load() {
		t.Fatal("disabled job ran")
	}
}

func TestCancelInFlightCancelsRunningJob(t *testing.T) {
	sender := &fakeSender{state: session.Connected}
	s := New(sender, zap.NewNop())

	started := make(chan struct{})
	cancelled := make(chan struct{})
	j := &Job{
		Name:     "slow",
		Interval: time.Hour,
		Enabled:  true,
		NextRun:  time.Now().Add(-time.Second),
		Fn: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	}
	s.Add(j)

	go s.tick(context.Background(), time.Now())
	<-started
	s.CancelInFlight()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled by CancelInFlight")
	}
}
