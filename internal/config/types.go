package config

// Config is the on-disk configuration of the pushd daemon.
//
// Files may be JSON or YAML (.yaml/.yml). Unknown keys are rejected so typos
// surface on load and on hot reload.
type Config struct {
	Push     PushConfig     `json:"push"`
	Logging  LoggingConfig  `json:"logging"`
	Exporter ExporterConfig `json:"exporter"`
	Admin    AdminConfig    `json:"admin,omitempty"`
}

// PushConfig controls the publish cadence.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - step: "1m"
//   - publish_timeout: "0s" (no deadline)
//   - name: exporter driver name
type PushConfig struct {
	Enabled        bool   `json:"enabled"`
	Step           string `json:"step"`
	PublishTimeout string `json:"publish_timeout,omitempty"`
	Name           string `json:"name,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ExporterConfig selects where published samples go.
//
// Example:
//
//	"exporter": { "driver": "http", "http": { "url": "http://gateway:9091/metrics/job/pushd" } }
type ExporterConfig struct {
	Driver string                `json:"driver"`
	HTTP   *HTTPExporterConfig   `json:"http,omitempty"`
	NATS   *NATSExporterConfig   `json:"nats,omitempty"`
	SQLite *SQLiteExporterConfig `json:"sqlite,omitempty"`
	File   *FileExporterConfig   `json:"file,omitempty"`
}

type HTTPExporterConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout,omitempty"`
	// RatePerSec caps outgoing pushes; 0 disables the limiter.
	RatePerSec int               `json:"rate_per_sec,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"` // values may carry credentials (do not log)
}

type NATSExporterConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

type SQLiteExporterConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// Retention prunes stored samples older than this; "0s" keeps everything.
	Retention string `json:"retention,omitempty"`
}

// FileExporterConfig appends one JSON line per publish to Path.
type FileExporterConfig struct {
	Path string `json:"path"`
}

// AdminConfig controls the optional admin HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9465").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9465"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"` // serve /debug/pprof/ (token applies)

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

const (
	DriverLog    = "log"
	DriverHTTP   = "http"
	DriverNATS   = "nats"
	DriverSQLite = "sqlite"
	DriverFile   = "file"

	DefaultStep      = "1m"
	DefaultAdminAddr = "127.0.0.1:9465"
)
