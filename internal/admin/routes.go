package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pushd/internal/runtime/supervisor"
)

// Status is the publisher state reported by GET /status.
type Status struct {
	Exporter   string              `json:"exporter"`
	Enabled    bool                `json:"enabled"`
	Step       string              `json:"step"`
	Scheduled  bool                `json:"scheduled"`
	Publishing bool                `json:"publishing"`
	Closed     bool                `json:"closed"`
	Workers    supervisor.Snapshot `json:"workers"`
}

// Target is the running publisher the admin server reports on and flushes.
type Target interface {
	Status() Status
	// Flush runs one guarded publish now and reports whether it ran.
	Flush() bool
}

// NewRouter builds the admin routes. metrics may be nil to omit /metrics.
// A non-empty token is required on every route except /healthz.
// profiler mounts net/http/pprof under /debug/pprof/.
func NewRouter(t Target, metrics http.Handler, token string, profiler bool) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(token))
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, t.Status())
		})
		r.Post("/flush", func(w http.ResponseWriter, _ *http.Request) {
			if !t.Flush() {
				writeJSON(w, http.StatusConflict, map[string]any{
					"published": false,
					"reason":    "publishing is already in progress",
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"published": true})
		})
		if metrics != nil {
			r.Method(http.MethodGet, "/metrics", metrics)
		}
		if profiler {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

// bearerAuth accepts either
//
//	Authorization: Bearer <token>
//
// or ?token=<token>. An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
