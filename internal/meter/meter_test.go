package meter

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"pushd/internal/push"
)

var _ push.Metrics = (*PublishMetrics)(nil)

func family(t *testing.T, r *Registry, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := r.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not gathered", name)
	return nil
}

func counterByResult(mf *dto.MetricFamily, result string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "result" && lp.GetValue() == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPublishMetricsRecordsResults(t *testing.T) {
	t.Parallel()
	r := New("test")
	m := NewPublishMetrics(r.Registerer(), r.Namespace())

	m.PublishStarted()
	m.PublishFinished(10*time.Millisecond, nil)
	m.PublishStarted()
	m.PublishFinished(20*time.Millisecond, errors.New("refused"))
	m.PublishSkipped()
	m.PublishSkipped()

	attempts := family(t, r, "test_publish_attempts_total")
	if got := counterByResult(attempts, ResultSuccess); got != 1 {
		t.Fatalf("success = %v, want 1", got)
	}
	if got := counterByResult(attempts, ResultFailure); got != 1 {
		t.Fatalf("failure = %v, want 1", got)
	}
	if got := counterByResult(attempts, ResultSkipped); got != 2 {
		t.Fatalf("skipped = %v, want 2", got)
	}

	inFlight := family(t, r, "test_publish_in_flight")
	if got := inFlight.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("in_flight = %v, want 0", got)
	}
	hist := family(t, r, "test_publish_duration_seconds").GetMetric()[0].GetHistogram()
	if hist.GetSampleCount() != 2 {
		t.Fatalf("duration samples = %d, want 2", hist.GetSampleCount())
	}
	last := family(t, r, "test_publish_last_success_timestamp_seconds").GetMetric()[0].GetGauge().GetValue()
	if last < float64(time.Now().Add(-time.Minute).Unix()) {
		t.Fatalf("last success timestamp %v is stale", last)
	}
}

func TestRuntimeCollectorsAndHandler(t *testing.T) {
	t.Parallel()
	r := New("", WithRuntimeCollectors(true))
	if r.Namespace() != DefaultNamespace {
		t.Fatalf("namespace = %q", r.Namespace())
	}
	family(t, r, "go_goroutines")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("handler = %d %q", rec.Code, rec.Body.String())
	}
}
