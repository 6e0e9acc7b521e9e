package push

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	logx "pushd/pkg/logx"
)

// ErrPublishPanic wraps a panic recovered from a publish action.
var ErrPublishPanic = errors.New("publish panicked")

// Guard is a non-blocking, at-most-one execution gate for publish actions.
//
// States: idle -> publishing on a successful TryRun, publishing -> idle when the
// action returns (including on error or panic). A TryRun that finds the gate
// busy does not wait and does not queue.
type Guard struct {
	running atomic.Bool

	log     logx.Logger
	metrics Metrics
}

// NewGuard returns an idle Guard. A nil metrics sink is allowed.
func NewGuard(log logx.Logger, metrics Metrics) *Guard {
	if log.IsZero() {
		log = logx.Nop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Guard{log: log, metrics: metrics}
}

// Running reports whether an action currently holds the gate.
func (g *Guard) Running() bool { return g.running.Load() }

// TryRun runs action if no other action is in flight and reports whether it ran.
//
// Errors and panics from action are logged with the exporter name and dropped.
func (g *Guard) TryRun(exporter string, action func() error) bool {
	if !g.running.CompareAndSwap(false, true) {
		g.log.Warn("publishing is already in progress; skipping duplicate publish", logx.String("exporter", exporter))
		g.metrics.PublishSkipped()
		return false
	}
	defer g.running.Store(false)

	start := time.Now()
	g.metrics.PublishStarted()
	stack, err := runContained(action)
	took := time.Since(start)
	g.metrics.PublishFinished(took, err)

	if err != nil {
		g.log.Warn("unexpected error while publishing metrics",
			logx.String("exporter", exporter),
			logx.Duration("took", took),
			logx.Err(err),
			logx.Stack(stack),
		)
		return true
	}
	g.log.Debug("metrics published", logx.String("exporter", exporter), logx.Duration("took", took))
	return true
}

func runContained(action func() error) (stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPublishPanic, r)
			stack = string(debug.Stack())
		}
	}()
	return "", action()
}
