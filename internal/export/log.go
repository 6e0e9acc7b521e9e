package export

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	logx "pushd/pkg/logx"
)

// logExporter writes a summary line per publish and one debug line per sample.
type logExporter struct {
	name string
	src  prometheus.Gatherer
	log  logx.Logger
}

func newLogExporter(name string, src prometheus.Gatherer, log logx.Logger) *logExporter {
	return &logExporter{name: name, src: src, log: log}
}

func (e *logExporter) Name() string { return e.name }

func (e *logExporter) Publish(ctx context.Context) error {
	b, err := gather(ctx, e.src, e.name)
	if err != nil {
		return err
	}
	e.log.Info("metrics snapshot", logx.Int("samples", len(b.Samples)), logx.Time("at", b.At))
	if e.log.Enabled(logx.LevelDebug) {
		for _, s := range b.Samples {
			e.log.Debug("sample",
				logx.String("name", s.Name),
				logx.String("labels", labelString(s.Labels)),
				logx.Float64("value", s.Value),
			)
		}
	}
	return nil
}

func (e *logExporter) Close() error { return nil }
