// Package admin serves the optional operator HTTP endpoints: health, publisher
// status, manual flush and the local metrics registry.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "pushd/internal/runtime/supervisor"
	logx "pushd/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9465"

// Config controls the admin HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	// Pprof exposes /debug/pprof/ behind the same token.
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Service struct {
	target  Target
	metrics http.Handler
	log     logx.Logger

	mu  sync.Mutex
	cfg Config
	cur *run
}

// run is one started server. A restart replaces it with a new run.
type run struct {
	cfg       Config
	sup       *rtsup.Supervisor
	ready     chan struct{}
	readyOnce sync.Once
	addr      atomic.Pointer[string]
}

func newRun(cfg Config) *run {
	return &run{cfg: cfg, ready: make(chan struct{})}
}

func (r *run) listening(addr string) {
	r.addr.Store(&addr)
	r.readyOnce.Do(func() { close(r.ready) })
}

func New(cfg Config, target Target, metrics http.Handler, log logx.Logger) *Service {
	return &Service{cfg: cfg, target: target, metrics: metrics, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Running reports whether a server has been started and not stopped.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}

// Addr returns the bound listen address, or "" when not listening.
func (s *Service) Addr() string {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r == nil {
		return ""
	}
	if p := r.addr.Load(); p != nil {
		return *p
	}
	return ""
}

// Ready is closed once the current server listens. Nil when not started.
func (s *Service) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.ready
}

// Reconfigure stores cfg and starts, stops or restarts the server to match.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev, running := s.cfg, s.cur != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case needsRestart(prev, cfg):
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.Pprof != b.Pprof ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout
}

// Start launches the server under ctx unless it is disabled or already
// running. Listen failures are retried with backoff and never reach the
// caller.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil || !s.cfg.Enabled {
		return
	}
	r := newRun(s.cfg)
	r.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	r.sup.GoRestart("admin.http", func(c context.Context) error { return s.serve(c, r) }, 500*time.Millisecond, 10*time.Second)
	s.cur = r
}

// Stop shuts the server down and waits for it until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	if err := r.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("admin server stop timed out", logx.Err(err))
		return
	}
	s.log.Info("admin server stopped")
}

// serve runs one listener until ctx is done. Any other return is a failure
// for the restart loop.
func (s *Service) serve(ctx context.Context, r *run) error {
	cfg := r.cfg
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			s.log.Error("admin refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
			return errInsecureBind
		}
		s.log.Warn("admin running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("admin listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           NewRouter(s.target, s.metrics, cfg.Token, cfg.Pprof),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	defer func() { _ = srv.Close() }()

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	r.listening(ln.Addr().String())
	s.log.Info("admin server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""))

	err = srv.Serve(ln)
	switch {
	case ctx.Err() != nil:
		return nil
	case err == nil || errors.Is(err, http.ErrServerClosed):
		return errUnexpectedExit
	}
	return err
}

var (
	errInsecureBind   = errors.New("admin refused to start: insecure bind")
	errUnexpectedExit = errors.New("admin server exited unexpectedly")
)

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	switch host = strings.TrimSpace(host); {
	case host == "":
		return false
	case strings.EqualFold(host, "localhost"):
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
