package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "pushd/pkg/logx"
)

type fakeTarget struct {
	flushOK bool
	flushes atomic.Int64
}

func (f *fakeTarget) Status() Status {
	return Status{Exporter: "http", Enabled: true, Step: "1m0s", Scheduled: true}
}

func (f *fakeTarget) Flush() bool {
	f.flushes.Add(1)
	return f.flushOK
}

func serve(t *testing.T, h http.Handler, method, path, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouterStatusRequiresToken(t *testing.T) {
	t.Parallel()
	r := NewRouter(&fakeTarget{}, nil, "s3cret", false)

	if w := serve(t, r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200 without token", w.Code)
	}
	if w := serve(t, r, http.MethodGet, "/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", w.Code)
	}
	if w := serve(t, r, http.MethodGet, "/status?token=nope", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong query token = %d, want 401", w.Code)
	}
	if w := serve(t, r, http.MethodGet, "/status?token=s3cret", ""); w.Code != http.StatusOK {
		t.Fatalf("status with query token = %d, want 200", w.Code)
	}

	w := serve(t, r, http.MethodGet, "/status", "Bearer s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var st Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Exporter != "http" || !st.Scheduled || st.Step != "1m0s" {
		t.Fatalf("status = %+v", st)
	}
}

func TestRouterFlush(t *testing.T) {
	t.Parallel()
	ok := &fakeTarget{flushOK: true}
	if w := serve(t, NewRouter(ok, nil, "", false), http.MethodPost, "/flush", ""); w.Code != http.StatusOK {
		t.Fatalf("flush = %d, want 200", w.Code)
	}
	busy := &fakeTarget{flushOK: false}
	w := serve(t, NewRouter(busy, nil, "", false), http.MethodPost, "/flush", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("busy flush = %d, want 409", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["published"] != false {
		t.Fatalf("busy flush body = %s (%v)", w.Body.String(), err)
	}

	if w := serve(t, NewRouter(ok, nil, "", false), http.MethodGet, "/flush", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /flush = %d, want 405", w.Code)
	}
	if ok.flushes.Load() != 1 || busy.flushes.Load() != 1 {
		t.Fatalf("flushes ok=%d busy=%d", ok.flushes.Load(), busy.flushes.Load())
	}
}

func TestRouterMetricsOptional(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pushd_publish_in_flight 0\n")
	})
	if w := serve(t, NewRouter(&fakeTarget{}, metrics, "", false), http.MethodGet, "/metrics", ""); w.Code != http.StatusOK || w.Body.String() != "pushd_publish_in_flight 0\n" {
		t.Fatalf("metrics = %d %q", w.Code, w.Body.String())
	}
	if w := serve(t, NewRouter(&fakeTarget{}, nil, "", false), http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler = %d, want 404", w.Code)
	}
}

func TestServiceStartStop(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, &fakeTarget{}, nil, logNop())
	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("admin server did not become ready")
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected bound address")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	if s.Addr() != "" || s.Running() {
		t.Fatal("service should be fully stopped")
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Running() {
		t.Fatal("disabled config must not start the server")
	}
}

func TestServeRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, &fakeTarget{}, nil, logNop())
	err := s.serve(context.Background(), newRun(s.cfg))
	if !errors.Is(err, errInsecureBind) {
		t.Fatalf("serve = %v, want insecure bind refusal", err)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:9465", true},
		{"localhost:9465", true},
		{"[::1]:9465", true},
		{":9465", false},
		{"0.0.0.0:9465", false},
		{"10.0.0.5:9465", false},
		{"bogus", false},
	}
	for _, tt := range tests {
		if got := isLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func logNop() logx.Logger { return logx.Nop() }

func TestRouterProfilerBehindToken(t *testing.T) {
	t.Parallel()
	r := NewRouter(&fakeTarget{}, nil, "s3cret", true)
	if w := serve(t, r, http.MethodGet, "/debug/pprof/", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("pprof without token = %d, want 401", w.Code)
	}
	if w := serve(t, r, http.MethodGet, "/debug/pprof/", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Fatalf("pprof index = %d, want 200", w.Code)
	}
	if w := serve(t, NewRouter(&fakeTarget{}, nil, "", false), http.MethodGet, "/debug/pprof/", ""); w.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d, want 404", w.Code)
	}
}
