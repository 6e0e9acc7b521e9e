package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pushd/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionPush     = "push"
	SectionLogging  = "logging"
	SectionExporter = "exporter"
	SectionAdmin    = "admin"
)

// SummarizeConfigChange returns (1) a sorted list of changed sections and
// (2) safe structured attrs for logging (never includes tokens or header values).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Push != newCfg.Push {
		changed = append(changed, SectionPush)
		attrs = append(attrs,
			logx.Bool("push.enabled", newCfg.Push.Enabled),
			logx.String("push.step", strings.TrimSpace(newCfg.Push.Step)),
			logx.String("push.name", newCfg.PublisherName()),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Exporter, newCfg.Exporter) {
		changed = append(changed, SectionExporter)
		attrs = append(attrs, logx.String("exporter.driver", newCfg.Driver()))
		if h := newCfg.Exporter.HTTP; h != nil {
			attrs = append(attrs, logx.Int("exporter.http.header_count", len(h.Headers)))
		}
	}

	// Admin (never log token)
	if oldCfg.Admin != newCfg.Admin {
		changed = append(changed, SectionAdmin)
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", strings.TrimSpace(newCfg.Admin.Addr)),
			logx.Bool("admin.token_set", strings.TrimSpace(newCfg.Admin.Token) != ""),
			logx.Bool("admin.pprof", newCfg.Admin.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// Changed reports whether section is in a list returned by SummarizeConfigChange.
func Changed(sections []string, section string) bool {
	for _, s := range sections {
		if s == section {
			return true
		}
	}
	return false
}
