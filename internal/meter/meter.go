// Package meter holds the in-process Prometheus registry that exporters
// snapshot on every publish, plus the publisher's own self metrics.
package meter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// DefaultNamespace prefixes every metric registered by this module.
const DefaultNamespace = "pushd"

// Registry wraps a private prometheus.Registry. The global default registry
// is never touched, so tests can build as many as they like.
type Registry struct {
	reg       *prometheus.Registry
	namespace string
}

type Option func(*options)

type options struct {
	runtime bool
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors(enabled bool) Option {
	return func(o *options) { o.runtime = enabled }
}

func New(namespace string, opts ...Option) *Registry {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	if o.runtime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return &Registry{reg: reg, namespace: namespace}
}

func (r *Registry) Namespace() string { return r.namespace }

func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Gather snapshots every registered collector, sorted by family name.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) { return r.reg.Gather() }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
