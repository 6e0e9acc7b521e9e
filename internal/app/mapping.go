package app

import (
	"strings"
	"time"

	"pushd/internal/admin"
	"pushd/internal/config"
	"pushd/internal/export"
	"pushd/internal/push"
	logx "pushd/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStepConfig(cfg *config.Config) (push.StaticConfig, error) {
	step, err := cfg.StepDuration()
	if err != nil {
		return push.StaticConfig{}, err
	}
	return push.StaticConfig{Every: step, On: cfg.Push.Enabled}, nil
}

func mapExporterConfig(cfg *config.Config) (export.Config, error) {
	out := export.Config{Driver: cfg.Driver(), Name: cfg.PublisherName()}
	ec := cfg.Exporter

	if h := ec.HTTP; h != nil {
		timeout, err := config.ParseDurationField("exporter.http.timeout", h.Timeout)
		if err != nil {
			return export.Config{}, err
		}
		out.HTTP = export.HTTPConfig{
			URL:        strings.TrimSpace(h.URL),
			Timeout:    timeout,
			RatePerSec: h.RatePerSec,
			Headers:    h.Headers,
		}
	}
	if n := ec.NATS; n != nil {
		out.NATS = export.NATSConfig{URL: strings.TrimSpace(n.URL), Subject: n.Subject}
	}
	if s := ec.SQLite; s != nil {
		busy, err := config.ParseDurationOrDefault("exporter.sqlite.busy_timeout", s.BusyTimeout, defaultBusyTimeout)
		if err != nil {
			return export.Config{}, err
		}
		retention, err := config.ParseDurationField("exporter.sqlite.retention", s.Retention)
		if err != nil {
			return export.Config{}, err
		}
		out.SQLite = export.SQLiteConfig{Path: strings.TrimSpace(s.Path), BusyTimeout: busy, Retention: retention}
	}
	if f := ec.File; f != nil {
		out.File = export.FileConfig{Path: strings.TrimSpace(f.Path)}
	}
	return out, nil
}

func mapAdminConfig(cfg *config.Config) (admin.Config, error) {
	ac := cfg.Admin
	addr := strings.TrimSpace(ac.Addr)
	if addr == "" {
		addr = config.DefaultAdminAddr
	}
	rt, err := config.ParseDurationOrDefault("admin.read_timeout", ac.ReadTimeout, 5*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	wt, err := config.ParseDurationOrDefault("admin.write_timeout", ac.WriteTimeout, 10*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	return admin.Config{
		Enabled:       ac.Enabled,
		Addr:          addr,
		Token:         strings.TrimSpace(ac.Token),
		AllowInsecure: ac.AllowInsecure,
		Pprof:         ac.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}, nil
}
