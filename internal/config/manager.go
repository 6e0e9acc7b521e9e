package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	logx "pushd/pkg/logx"
)

// validateTimeout bounds the extra validator installed with SetValidator.
const validateTimeout = 5 * time.Second

// Manager owns the committed Config of one file and fans out every accepted
// change to subscribers.
type Manager struct {
	path string
	log  logx.Logger

	committed atomic.Pointer[snapshot]
	validator func(ctx context.Context, cfg *Config) error

	subsMu sync.Mutex // held while sending so Unsubscribe cannot close mid-send
	subs   map[chan *Config]struct{}
}

type snapshot struct {
	cfg  *Config
	hash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path, subs: make(map[chan *Config]struct{})}
}

func (m *Manager) Path() string { return m.path }

// SetLogger must be called before Watch.
func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs a check that runs after Validate on every reload.
// A rejected file is logged and never committed. Must be called before Watch.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file without validating or committing it.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Load parses and validates the file and commits it.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

// Commit makes cfg the current config without notifying subscribers.
func (m *Manager) Commit(cfg *Config) {
	m.committed.Store(&snapshot{cfg: cfg, hash: hashConfig(cfg)})
}

// Get returns the committed config, or nil before the first Load or Commit.
func (m *Manager) Get() *Config {
	if s := m.committed.Load(); s != nil {
		return s.cfg
	}
	return nil
}

func (m *Manager) committedHash() uint64 {
	if s := m.committed.Load(); s != nil {
		return s.hash
	}
	return 0
}

// Subscribe returns a channel receiving each committed reload. A subscriber
// that falls behind only ever misses older configs: when its buffer is full
// the oldest queued config is dropped.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(buffer, 1))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. Unknown channels are ignored.
func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload re-reads the file and, if it changed and passes validation,
// commits and publishes it.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed; keeping current", logx.String("path", m.path), logx.Err(err))
		return
	}
	h := hashConfig(cfg)
	if h != 0 && h == m.committedHash() {
		m.log.Debug("config unchanged", logx.String("path", m.path))
		return
	}

	if err := m.check(ctx, cfg); err != nil {
		m.log.Warn("config rejected; keeping current", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.committed.Store(&snapshot{cfg: cfg, hash: h})
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%016x", h)))
}

func (m *Manager) check(ctx context.Context, cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if m.validator == nil {
		return nil
	}
	vctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	return m.validator(vctx, cfg)
}
