package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultFilePath is used when the file sink is enabled without a path.
const DefaultFilePath = "./pushd.log"

// Config selects the sinks. The console sink is human readable; the file
// sink appends JSON lines. With no sink enabled output goes to the console.
type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the active sinks and the log file handle.
type Service struct {
	console io.Writer

	mu   sync.Mutex // serializes Apply and Close
	file *os.File

	root atomic.Pointer[zerolog.Logger]
}

// New builds a Service from cfg and returns it with a Logger bound to it.
// A log file that cannot be opened is reported through the returned Logger
// and the console is used instead.
func New(cfg Config) (*Service, Logger) {
	s := newService(os.Stdout)
	if err := s.Apply(cfg); err != nil {
		s.Logger().Warn("log file unavailable; using console", Err(err))
	}
	return s, s.Logger()
}

func newService(console io.Writer) *Service {
	setup()
	s := &Service{console: console}
	boot := zerolog.New(consoleWriter(console)).With().Timestamp().Logger()
	s.root.Store(&boot)
	return s
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) current() *zerolog.Logger { return s.root.Load() }

// Apply installs sinks for cfg. The new sinks are live before the previous
// log file is closed. If the file sink cannot be opened, Apply falls back to
// the console and returns the open error.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		writers []io.Writer
		file    *os.File
		openErr error
	)
	if cfg.Console {
		writers = append(writers, consoleWriter(s.console))
	}
	if cfg.File.Enabled {
		file, openErr = openLogFile(cfg.File.Path)
		if openErr == nil {
			writers = append(writers, zerolog.SyncWriter(file))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, consoleWriter(s.console))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	prev := s.file
	s.file = file
	if prev != nil {
		_ = prev.Close()
	}
	return openErr
}

// Close releases the log file. Later events go to the console.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fallback := zerolog.New(consoleWriter(s.console)).Level(s.current().GetLevel()).With().Timestamp().Logger()
	s.root.Store(&fallback)

	f := s.file
	s.file = nil
	if f == nil {
		return nil
	}
	return f.Close()
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}
