package export

import (
	"bytes"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	logx "pushd/pkg/logx"
)

// testSource returns a registry holding one series of each kind.
func testSource(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()

	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "jobs_total", Help: "jobs"}, []string{"queue"})
	jobs.WithLabelValues("default").Add(3)
	temp := prometheus.NewGauge(prometheus.GaugeOpts{Name: "temperature_celsius", Help: "temp"})
	temp.Set(21.5)
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "latency_seconds", Help: "lat", Buckets: []float64{0.1, 1}})
	lat.Observe(0.05)
	lat.Observe(0.5)
	lat.Observe(5)
	size := prometheus.NewSummary(prometheus.SummaryOpts{Name: "payload_bytes", Help: "size", Objectives: map[float64]float64{0.5: 0.05}})

	reg.MustRegister(jobs, temp, lat, size)
	return reg
}

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

func newTestLogger(level string) (logx.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return logx.NewWriter(buf, level), buf
}

func findSample(samples []Sample, name string, labels map[string]string) (Sample, bool) {
outer:
	for _, s := range samples {
		if s.Name != name {
			continue
		}
		for k, v := range labels {
			if s.Labels[k] != v {
				continue outer
			}
		}
		return s, true
	}
	return Sample{}, false
}

func logNop() logx.Logger { return logx.Nop() }
