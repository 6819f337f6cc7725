package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingTicker struct {
	ticks atomic.Int64
	panic bool
}

func (c *countingTicker) Tick(ctx context.Context) {
	c.ticks.Add(1)
	if c.panic {
		panic("extraction blew up")
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	tk := &countingTicker{}
	p := New(tk, 5*time.Millisecond, "CA123")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for tk.ticks.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("poller never reached 3 ticks")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_SurvivesPanickyTick(t *testing.T) {
	tk := &countingTicker{panic: true}
	p := New(tk, time.Millisecond, "CA123")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for tk.ticks.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("panicky tick never ran")
		case <-time.After(time.Millisecond):
		}
	}
	// Cancellation lands while the panic backoff sleep is in progress.
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after a tick panicked")
	}
}

func TestNew_DefaultsInterval(t *testing.T) {
	p := New(&countingTicker{}, 0, "CA123")
	if p.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", p.interval, DefaultInterval)
	}
}
