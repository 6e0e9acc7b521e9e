package push

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "pushd/pkg/logx"
)

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Count(substr string) int {
	return strings.Count(b.String(), substr)
}

func newTestLogger() (logx.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return logx.NewWriter(buf, "debug"), buf
}

// countingPublisher records calls and the peak number of concurrent calls.
type countingPublisher struct {
	name  string
	calls atomic.Int64

	inFlight atomic.Int64
	peak     atomic.Int64

	run func(ctx context.Context, n int64) error
}

func (p *countingPublisher) Name() string { return p.name }

func (p *countingPublisher) Publish(ctx context.Context) error {
	n := p.calls.Add(1)
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if cur <= old || p.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if p.run != nil {
		return p.run(ctx, n)
	}
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func logNop() logx.Logger { return logx.Nop() }
