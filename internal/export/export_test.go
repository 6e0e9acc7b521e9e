package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pushd/internal/push"
)

var (
	_ push.Publisher = (*logExporter)(nil)
	_ push.Publisher = (*fileExporter)(nil)
	_ push.Publisher = (*httpExporter)(nil)
	_ push.Publisher = (*natsExporter)(nil)
	_ push.Publisher = (*sqliteExporter)(nil)
)

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "kafka"}, testSource(t), logNop())
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("Open = %v, want ErrUnknownDriver", err)
	}
	if _, err := Open(Config{}, nil, logNop()); err == nil {
		t.Fatal("expected error for nil gatherer")
	}
}

func TestLogExporterDefaultsAndWritesSnapshot(t *testing.T) {
	t.Parallel()
	log, buf := newTestLogger("debug")
	e, err := Open(Config{}, testSource(t), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if e.Name() != "log" {
		t.Fatalf("default name = %q, want log", e.Name())
	}
	if err := e.Publish(context.Background()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"message":"metrics snapshot"`, `"exporter":"log"`, `"name":"temperature_celsius"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestPublishHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	e, err := Open(Config{Driver: "log"}, testSource(t), logNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Publish(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish = %v, want context.Canceled", err)
	}
}

func TestFileExporterAppendsJSONLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "metrics.jsonl")
	e, err := Open(Config{Driver: "file", Name: "edge-7", File: FileConfig{Path: path}}, testSource(t), logNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := e.Publish(context.Background()); err != nil {
			t.Fatalf("Publish #%d: %v", i, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Publish(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close = %v, want ErrClosed", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines int
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var b Batch
		if err := json.Unmarshal(sc.Bytes(), &b); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if b.Source != "edge-7" || len(b.Samples) == 0 {
			t.Fatalf("line %d: unexpected batch %+v", lines, b)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("lines = %d, want 2", lines)
	}
}

func TestFileExporterRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "file"}, testSource(t), logNop()); err == nil {
		t.Fatal("expected error without path")
	}
}
