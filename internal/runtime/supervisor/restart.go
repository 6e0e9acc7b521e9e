package supervisor

import (
	"context"
	"fmt"
	"time"

	logx "pushd/pkg/logx"
)

const defaultMinBackoff = 250 * time.Millisecond

// GoRestart runs fn and restarts it after an error or panic, doubling the
// wait from minBackoff up to maxBackoff. A nil return or a canceled context
// ends the loop. Restart failures never reach Err.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, minBackoff, maxBackoff time.Duration) {
	if fn == nil {
		return
	}
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff = max(maxBackoff, minBackoff)

	// the loop is tracked under its own name so name counts runs of fn
	s.Go0(name+".restart", func(ctx context.Context) {
		wait := minBackoff
		for run := 0; ctx.Err() == nil; run++ {
			tok := s.begin(name, run > 0)
			err := s.call(name, fn)
			if err == nil || ctx.Err() != nil {
				s.end(tok, nil)
				return
			}
			s.end(tok, fmt.Errorf("%s: %w", name, err))

			s.log.Warn("goroutine restarting",
				logx.String("name", name),
				logx.Duration("backoff", wait),
				logx.Err(err),
			)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			wait = min(2*wait, maxBackoff)
		}
	})
}
