package export

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	logx "pushd/pkg/logx"
)

// fileExporter appends one Batch per publish to a JSON Lines file.
type fileExporter struct {
	name string
	src  prometheus.Gatherer
	log  logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

func openFile(cfg Config, src prometheus.Gatherer, log logx.Logger) (Exporter, error) {
	path := strings.TrimSpace(cfg.File.Path)
	if path == "" {
		return nil, errors.New("exporter.file.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file exporter opened", logx.String("path", path))
	return &fileExporter{name: cfg.Name, src: src, log: log, path: path, f: f}, nil
}

func (e *fileExporter) Name() string { return e.name }

func (e *fileExporter) Publish(ctx context.Context) error {
	b, err := gather(ctx, e.src, e.name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f == nil {
		return ErrClosed
	}
	return json.NewEncoder(e.f).Encode(b)
}

func (e *fileExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	return err
}
