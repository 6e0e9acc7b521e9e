package config

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "pushd/pkg/logx"
)

const (
	reloadDebounce = 250 * time.Millisecond

	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

var errWatcherClosed = errors.New("fsnotify watcher closed")

// Watch reloads the file whenever it changes until ctx is done. Bursts of
// events within reloadDebounce collapse into one reload. The directory is
// watched, not the file, so editors that replace the file are seen. A failed
// watcher is recreated with jittered backoff. Watch always returns nil.
func (m *Manager) Watch(ctx context.Context) error {
	w := &watcher{
		m:       m,
		dir:     filepath.Dir(m.path),
		file:    filepath.Base(m.path),
		backoff: watchBackoffMin,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	defer w.cancelPending()

	for {
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		wait := w.nextBackoff()
		m.log.Warn("config watcher failed; restarting",
			logx.String("dir", w.dir),
			logx.Err(err),
			logx.Duration("backoff", wait),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

type watcher struct {
	m         *Manager
	dir, file string
	backoff   time.Duration
	rng       *rand.Rand

	mu      sync.Mutex
	pending *time.Timer
}

// session runs one fsnotify watcher until it fails or ctx is done.
func (w *watcher) session(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.backoff = watchBackoffMin
	w.m.log.Debug("config watcher started", logx.String("dir", w.dir), logx.String("file", w.file))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(ev.Name) == w.file && !ev.Has(fsnotify.Chmod) {
				w.schedule(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// events may have been lost; re-read once
				w.m.log.Warn("config watch overflow; forcing reload", logx.String("dir", w.dir))
				w.schedule(ctx)
				continue
			}
			return err
		}
	}
}

func (w *watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(reloadDebounce, func() {
		if ctx.Err() == nil {
			w.m.reload(ctx)
		}
	})
}

func (w *watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
}

// nextBackoff returns the current backoff plus up to 50% jitter and doubles
// the base for the next failure.
func (w *watcher) nextBackoff() time.Duration {
	wait := w.backoff + time.Duration(w.rng.Int63n(int64(w.backoff/2)+1))
	w.backoff = min(2*w.backoff, watchBackoffMax)
	return wait
}
