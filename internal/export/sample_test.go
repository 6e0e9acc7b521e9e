package export

import (
	"math"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"
)

func TestFlattenNamesSeriesLikeTextFormat(t *testing.T) {
	t.Parallel()
	mfs, err := testSource(t).Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	samples := Flatten(mfs)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"jobs_total", map[string]string{"queue": "default"}, 3},
		{"temperature_celsius", nil, 21.5},
		{"latency_seconds_bucket", map[string]string{"le": "0.1"}, 1},
		{"latency_seconds_bucket", map[string]string{"le": "1"}, 2},
		{"latency_seconds_bucket", map[string]string{"le": "+Inf"}, 3},
		{"latency_seconds_count", nil, 3},
		{"latency_seconds_sum", nil, 5.55},
		{"payload_bytes_count", nil, 0},
	}
	for _, tt := range tests {
		s, ok := findSample(samples, tt.name, tt.labels)
		if !ok {
			t.Fatalf("sample %s%v missing from %+v", tt.name, tt.labels, samples)
		}
		if math.Abs(s.Value-tt.want) > 1e-9 {
			t.Fatalf("%s%v = %v, want %v", tt.name, tt.labels, s.Value, tt.want)
		}
	}

	// An empty summary reports NaN quantiles, which JSON cannot carry.
	if _, ok := findSample(samples, "payload_bytes", map[string]string{"quantile": "0.5"}); ok {
		t.Fatal("NaN quantile should have been dropped")
	}
}

func TestFlattenUntypedAndExplicitInfBucket(t *testing.T) {
	t.Parallel()
	mfs := []*dto.MetricFamily{
		{
			Name:   proto.String("up"),
			Type:   dto.MetricType_UNTYPED.Enum(),
			Metric: []*dto.Metric{{Untyped: &dto.Untyped{Value: proto.Float64(1)}}},
		},
		{
			Name: proto.String("h"),
			Type: dto.MetricType_HISTOGRAM.Enum(),
			Metric: []*dto.Metric{{Histogram: &dto.Histogram{
				SampleCount: proto.Uint64(2),
				SampleSum:   proto.Float64(3),
				Bucket: []*dto.Bucket{
					{UpperBound: proto.Float64(math.Inf(1)), CumulativeCount: proto.Uint64(2)},
				},
			}}},
		},
	}
	samples := Flatten(mfs)
	if s, ok := findSample(samples, "up", nil); !ok || s.Type != "untyped" || s.Value != 1 {
		t.Fatalf("untyped sample = %+v, %v", s, ok)
	}
	n := 0
	for _, s := range samples {
		if s.Name == "h_bucket" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("got %d h_bucket samples, want exactly one +Inf bucket", n)
	}
}

func TestSnapshotStampsSourceAndUTC(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	b, err := Snapshot(testSource(t), "node-1", at)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if b.Source != "node-1" || !b.At.Equal(at) || b.At.Location() != time.UTC {
		t.Fatalf("batch header = %q %v", b.Source, b.At)
	}
	if len(b.Samples) == 0 {
		t.Fatal("expected samples")
	}
}

func TestLabelStringIsSorted(t *testing.T) {
	t.Parallel()
	got := labelString(map[string]string{"b": "2", "a": `x"y`})
	if want := `a="x\"y",b="2"`; got != want {
		t.Fatalf("labelString = %s, want %s", got, want)
	}
	if labelString(nil) != "" {
		t.Fatal("empty labels should render empty")
	}
}
