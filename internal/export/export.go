package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "pushd/pkg/logx"
)

var (
	ErrUnknownDriver = errors.New("unknown exporter driver")
	// ErrRateLimited is returned by the http exporter when a publish arrives
	// faster than rate_per_sec allows. The publish is dropped, not delayed.
	ErrRateLimited = errors.New("publish rate limited")
	ErrClosed      = errors.New("exporter closed")
)

// Exporter is a push.Publisher that owns a connection or file handle.
type Exporter interface {
	Name() string
	Publish(ctx context.Context) error
	Close() error
}

// Config selects and configures one exporter.
//
// Driver values: "log" (default), "file", "http", "nats", "sqlite".
type Config struct {
	Driver string
	// Name identifies the publisher in logs and is stamped on every batch.
	Name string

	HTTP   HTTPConfig
	NATS   NATSConfig
	SQLite SQLiteConfig
	File   FileConfig
}

type HTTPConfig struct {
	URL        string
	Timeout    time.Duration // 0 means 10s
	RatePerSec int           // 0 disables the limiter
	Headers    map[string]string
}

type NATSConfig struct {
	URL     string
	Subject string
}

type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
	Retention   time.Duration // 0 keeps everything
}

type FileConfig struct {
	Path string
}

// Open builds the configured exporter over src.
func Open(cfg Config, src prometheus.Gatherer, log logx.Logger) (Exporter, error) {
	if src == nil {
		return nil, errors.New("export: gatherer is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "log"
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = driver
	}
	log = log.With(logx.String("exporter", cfg.Name), logx.String("driver", driver))

	switch driver {
	case "log":
		return newLogExporter(cfg.Name, src, log), nil
	case "file":
		return openFile(cfg, src, log)
	case "http":
		return newHTTPExporter(cfg, src, log)
	case "nats":
		return openNATS(cfg, src, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, src, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// gather snapshots src for one publish, honoring ctx cancellation first.
func gather(ctx context.Context, src prometheus.Gatherer, source string) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	return Snapshot(src, source, time.Now())
}
