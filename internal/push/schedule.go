package push

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// fixedRate fires at first, first+period, first+2*period, ...
//
// Tick times never depend on how long a publish took. Ticks that passed while
// the process was stalled are skipped rather than replayed.
type fixedRate struct {
	first  time.Time
	period time.Duration
}

func (s fixedRate) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	n := t.Sub(s.first)/s.period + 1
	return s.first.Add(n * s.period)
}

// schedule is the handle to one running trigger. It is replaced, never reused,
// on every Start.
type schedule struct {
	name string
	cron *cron.Cron

	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex // orders tick admission against cancel
	stopped bool
	ticks   sync.WaitGroup
}

func newSchedule(name string, c *cron.Cron) *schedule {
	return &schedule{name: name, cron: c, stop: make(chan struct{})}
}

// job wraps fn for cron. A tick that reaches admission after cancel is
// dropped.
func (h *schedule) job(fn func()) cron.Job {
	return cron.FuncJob(func() {
		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			return
		}
		h.ticks.Add(1)
		h.mu.Unlock()
		defer h.ticks.Done()
		fn()
	})
}

// run is the worker body: it owns the cron loop until cancel or ctx is done.
func (h *schedule) run(ctx context.Context) error {
	select {
	case <-h.stop:
		return nil
	default:
	}

	h.cron.Start()
	select {
	case <-h.stop:
	case <-ctx.Done():
	}
	h.cron.Stop()
	return nil
}

// cancel returns once no further tick can start a publish. Ticks admitted
// before it may still be running; wait covers those.
func (h *schedule) cancel() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		// blocks until the cron loop stops dispatching
		h.cron.Stop()
		close(h.stop)
	})
}

// wait blocks until admitted ticks return or ctx is done. Only valid after cancel.
func (h *schedule) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.ticks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
