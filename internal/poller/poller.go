package poller

import (
	"context"
	"log"
	"time"
)

// DefaultInterval is the fixed gap between transcript evaluations. The
// poller samples the log's current state rather than observing individual
// turns, so rapid back-to-back turns coalesce into one evaluation.
const DefaultInterval = 2 * time.Second

// errBackoff is slept after a tick panics, before the loop resumes.
const errBackoff = 2 * time.Second

// Ticker is one evaluation pass over the conversation state.
type Ticker interface {
	Tick(ctx context.Context)
}

// Poller runs the stage machine on a fixed interval until the call ends.
// A crash inside one tick is caught and logged and the loop resumes after a
// backoff; the call is never terminated by extraction logic.
type Poller struct {
	machine  Ticker
	interval time.Duration
	callSID  string
}

// New creates a poller for one call. A non-positive interval falls back to
// DefaultInterval.
func New(machine Ticker, interval time.Duration, callSID string) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{machine: machine, interval: interval, callSID: callSID}
}

// Run blocks until ctx is cancelled. Cancellation is the expected shutdown
// path at call disconnect, not an error.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.safeTick(ctx)
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] transcript poll tick panicked: %v", p.callSID, r)
			select {
			case <-ctx.Done():
			case <-time.After(errBackoff):
			}
		}
	}()
	p.machine.Tick(ctx)
}
