package app

import (
	"context"
	"fmt"
	"time"

	logx "pushd/pkg/logx"
)

// slowStep is the duration above which a finished step is logged at info.
const slowStep = 500 * time.Millisecond

// shutdownStep is one component's part of Stop. limit bounds the step on top
// of the caller's deadline.
type shutdownStep struct {
	name  string
	limit time.Duration
	fn    func(ctx context.Context) error
}

// shutdown runs steps in order. A step that overruns its limit is left
// running in the background and the next step starts.
func (a *App) shutdown(ctx context.Context, steps ...shutdownStep) {
	for _, st := range steps {
		a.runStep(ctx, st)
	}
}

func (a *App) runStep(ctx context.Context, st shutdownStep) {
	log := a.log.With(logx.String("step", st.name))
	sctx, cancel := context.WithTimeout(ctx, st.limit)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- st.fn(sctx)
	}()

	select {
	case err := <-done:
		a.logStepEnd(log, err, time.Since(start))
	case <-sctx.Done():
		log.Warn("shutdown step overran; continuing", logx.Err(sctx.Err()), logx.Duration("limit", st.limit))
		go func() { a.logStepEnd(log, <-done, time.Since(start)) }()
	}
}

func (a *App) logStepEnd(log logx.Logger, err error, took time.Duration) {
	switch {
	case err != nil:
		log.Warn("shutdown step failed", logx.Err(err), logx.Duration("took", took))
	case took >= slowStep:
		log.Info("shutdown step done", logx.Duration("took", took))
	default:
		log.Debug("shutdown step done", logx.Duration("took", took))
	}
}
