package export

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Sample is one flattened time series value.
type Sample struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
}

// Batch is everything gathered by one publish.
type Batch struct {
	Source  string    `json:"source"`
	At      time.Time `json:"at"`
	Samples []Sample  `json:"samples"`
}

// Snapshot gathers g and flattens the result into a Batch stamped with at.
// A partial gather error is returned together with whatever was gathered.
func Snapshot(g prometheus.Gatherer, source string, at time.Time) (Batch, error) {
	mfs, err := g.Gather()
	return Batch{Source: source, At: at.UTC(), Samples: Flatten(mfs)}, err
}

// Flatten turns metric families into samples the way the text exposition
// format names them: histograms become _bucket/_sum/_count series and
// summaries become quantile/_sum/_count series. Non-finite values are dropped
// since they cannot be carried in JSON.
func Flatten(mfs []*dto.MetricFamily) []Sample {
	out := make([]Sample, 0, len(mfs))
	add := func(name, typ string, labels map[string]string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		out = append(out, Sample{Name: name, Type: typ, Labels: labels, Value: v})
	}

	for _, mf := range mfs {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			base := labelMap(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				add(name, "counter", base, m.GetCounter().GetValue())
			case dto.MetricType_GAUGE:
				add(name, "gauge", base, m.GetGauge().GetValue())
			case dto.MetricType_UNTYPED:
				add(name, "untyped", base, m.GetUntyped().GetValue())
			case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
				h := m.GetHistogram()
				sawInf := false
				for _, b := range h.GetBucket() {
					ub := b.GetUpperBound()
					sawInf = sawInf || math.IsInf(ub, 1)
					add(name+"_bucket", "histogram", withLabel(base, "le", formatFloat(ub)), float64(b.GetCumulativeCount()))
				}
				if !sawInf {
					add(name+"_bucket", "histogram", withLabel(base, "le", "+Inf"), float64(h.GetSampleCount()))
				}
				add(name+"_sum", "histogram", base, h.GetSampleSum())
				add(name+"_count", "histogram", base, float64(h.GetSampleCount()))
			case dto.MetricType_SUMMARY:
				s := m.GetSummary()
				for _, q := range s.GetQuantile() {
					add(name, "summary", withLabel(base, "quantile", formatFloat(q.GetQuantile())), q.GetValue())
				}
				add(name+"_sum", "summary", base, s.GetSampleSum())
				add(name+"_count", "summary", base, float64(s.GetSampleCount()))
			}
		}
	}
	return out
}

func labelMap(lps []*dto.LabelPair) map[string]string {
	if len(lps) == 0 {
		return nil
	}
	m := make(map[string]string, len(lps))
	for _, lp := range lps {
		m[lp.GetName()] = lp.GetValue()
	}
	return m
}

func withLabel(base map[string]string, k, v string) map[string]string {
	m := make(map[string]string, len(base)+1)
	for bk, bv := range base {
		m[bk] = bv
	}
	m[k] = v
	return m
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// labelString renders labels as a stable k="v" list, for storage keys.
func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b := make([]byte, 0, 16*len(keys))
	for i, k := range keys {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, k...)
		b = append(b, '=')
		b = strconv.AppendQuote(b, labels[k])
	}
	return string(b)
}
