package config

import (
	"net/url"
	"strings"
	"time"
)

// Driver returns the effective exporter driver ("log" when unset).
func (c *Config) Driver() string {
	if d := strings.ToLower(strings.TrimSpace(c.Exporter.Driver)); d != "" {
		return d
	}
	return DriverLog
}

// StepDuration returns push.step, defaulting to one minute.
func (c *Config) StepDuration() (time.Duration, error) {
	raw := c.Push.Step
	if strings.TrimSpace(raw) == "" {
		raw = DefaultStep
	}
	d, err := ParseDurationField("push.step", raw)
	if err != nil {
		return 0, err
	}
	if d < time.Millisecond {
		return 0, fieldErr("push.step", "must be at least 1ms, got %q", raw)
	}
	return d, nil
}

// PublisherName returns push.name, or the driver name when unset.
func (c *Config) PublisherName() string {
	if n := strings.TrimSpace(c.Push.Name); n != "" {
		return n
	}
	return c.Driver()
}

// Validate rejects configs the daemon cannot run with. The first problem
// found is returned as a *FieldError.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fieldErr("config", "is empty")
	}
	checks := []func(*Config) error{
		validatePush,
		validateExporter,
		validateAdmin,
	}
	for _, check := range checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	return nil
}

func validatePush(cfg *Config) error {
	if _, err := cfg.StepDuration(); err != nil {
		return err
	}
	_, err := ParseDurationField("push.publish_timeout", cfg.Push.PublishTimeout)
	return err
}

func validateExporter(cfg *Config) error {
	driver := cfg.Driver()
	required := func(path, value string) error {
		if strings.TrimSpace(value) == "" {
			return fieldErr(path, "required for driver %q", driver)
		}
		return nil
	}

	switch driver {
	case DriverLog:
		return nil
	case DriverFile:
		return required("exporter.file.path", orZero(cfg.Exporter.File).Path)
	case DriverHTTP:
		h := orZero(cfg.Exporter.HTTP)
		if err := required("exporter.http.url", h.URL); err != nil {
			return err
		}
		u, err := url.Parse(strings.TrimSpace(h.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fieldErr("exporter.http.url", "%q is not an http(s) URL", h.URL)
		}
		if h.RatePerSec < 0 {
			return fieldErr("exporter.http.rate_per_sec", "must not be negative")
		}
		_, err = ParseDurationField("exporter.http.timeout", h.Timeout)
		return err
	case DriverNATS:
		n := orZero(cfg.Exporter.NATS)
		if err := required("exporter.nats.url", n.URL); err != nil {
			return err
		}
		if err := required("exporter.nats.subject", n.Subject); err != nil {
			return err
		}
		if strings.ContainsAny(n.Subject, " \t*>") {
			return fieldErr("exporter.nats.subject", "%q must be a literal subject (no wildcards or spaces)", n.Subject)
		}
		return nil
	case DriverSQLite:
		s := orZero(cfg.Exporter.SQLite)
		if err := required("exporter.sqlite.path", s.Path); err != nil {
			return err
		}
		if _, err := ParseDurationField("exporter.sqlite.busy_timeout", s.BusyTimeout); err != nil {
			return err
		}
		_, err := ParseDurationField("exporter.sqlite.retention", s.Retention)
		return err
	}
	return fieldErr("exporter.driver", "unknown driver %q", cfg.Exporter.Driver)
}

func validateAdmin(cfg *Config) error {
	if _, err := ParseDurationField("admin.read_timeout", cfg.Admin.ReadTimeout); err != nil {
		return err
	}
	_, err := ParseDurationField("admin.write_timeout", cfg.Admin.WriteTimeout)
	return err
}

func orZero[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
