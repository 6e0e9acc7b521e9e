package supervisor

import (
	"cmp"
	"slices"
	"time"
)

// Counters are totals across every name. They are for reporting only.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

// WorkerStats aggregates the goroutines started under one name.
type WorkerStats struct {
	Name        string        `json:"name"`
	Active      int64         `json:"active"`
	Started     uint64        `json:"started"`
	Panics      uint64        `json:"panics"`
	Restarts    uint64        `json:"restarts"`
	LastStartAt time.Time     `json:"last_start_at"`
	LastStopAt  time.Time     `json:"last_stop_at"`
	LastErr     string        `json:"last_err,omitempty"`
	LastRuntime time.Duration `json:"last_runtime"`
}

// Snapshot is the supervisor state served on the admin status endpoint.
type Snapshot struct {
	Counters   Counters      `json:"counters"`
	FirstError string        `json:"first_error,omitempty"`
	Workers    []WorkerStats `json:"workers"`
}

// runToken marks one run of a named worker between begin and end.
type runToken struct {
	name  string
	start time.Time
}

func (s *Supervisor) entry(name string) *WorkerStats {
	st, ok := s.stats[name]
	if !ok {
		st = &WorkerStats{Name: name}
		s.stats[name] = st
	}
	return st
}

func (s *Supervisor) begin(name string, restart bool) runToken {
	tok := runToken{name: name, start: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(name)
	st.Started++
	st.Active++
	st.LastStartAt = tok.start
	if restart {
		st.Restarts++
	}
	return tok
}

func (s *Supervisor) end(tok runToken, err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.entry(tok.name)
	st.Active = max(st.Active-1, 0)
	st.LastStopAt = now
	st.LastRuntime = now.Sub(tok.start)
	if err != nil {
		st.LastErr = err.Error()
	}
}

func (s *Supervisor) notePanic(name string) {
	s.mu.Lock()
	s.entry(name).Panics++
	s.mu.Unlock()
}

// Active reports how many goroutines named name are running.
func (s *Supervisor) Active(name string) int64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[name]; ok {
		return st.Active
	}
	return 0
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counters
	for _, st := range s.stats {
		c.Active += st.Active
		c.Started += st.Started
	}
	return c
}

// Snapshot lists running workers first, then the rest by name.
func (s *Supervisor) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{Counters: s.Counters()}

	s.mu.Lock()
	if s.firstErr != nil {
		snap.FirstError = s.firstErr.Error()
	}
	snap.Workers = make([]WorkerStats, 0, len(s.stats))
	for _, st := range s.stats {
		snap.Workers = append(snap.Workers, *st)
	}
	s.mu.Unlock()

	slices.SortFunc(snap.Workers, func(a, b WorkerStats) int {
		if c := cmp.Compare(b.Active, a.Active); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return snap
}
