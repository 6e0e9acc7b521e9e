package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	logx "pushd/pkg/logx"
)

const natsFlushTimeout = 5 * time.Second

// natsConn is the part of *nats.Conn the exporter uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// natsExporter publishes each Batch as JSON on a fixed subject.
type natsExporter struct {
	name    string
	subject string
	nc      natsConn
	src     prometheus.Gatherer
	log     logx.Logger
}

func openNATS(cfg Config, src prometheus.Gatherer, log logx.Logger) (Exporter, error) {
	if strings.TrimSpace(cfg.NATS.URL) == "" || strings.TrimSpace(cfg.NATS.Subject) == "" {
		return nil, errors.New("exporter.nats.url and exporter.nats.subject are required")
	}
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("pushd/"+cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return newNATSExporter(cfg, nc, src, log), nil
}

func newNATSExporter(cfg Config, nc natsConn, src prometheus.Gatherer, log logx.Logger) *natsExporter {
	return &natsExporter{
		name:    cfg.Name,
		subject: strings.TrimSpace(cfg.NATS.Subject),
		nc:      nc,
		src:     src,
		log:     log,
	}
}

func (e *natsExporter) Name() string { return e.name }

func (e *natsExporter) Publish(ctx context.Context) error {
	b, err := gather(ctx, e.src, e.name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := e.nc.Publish(e.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", e.subject, err)
	}

	// Flush needs a deadline; keep the caller's when it has one.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, natsFlushTimeout)
		defer cancel()
	}
	if err := e.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (e *natsExporter) Close() error { return e.nc.Drain() }
