package push

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig matches every *ConfigError via errors.Is.
var ErrInvalidConfig = errors.New("invalid push config")

// ConfigError reports an invalid StepConfig. It is returned by New and the
// Registry is never created.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("push config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// StepConfig is read by the Registry. Step and Enabled must not change while
// a schedule is running; rebuild the Registry to apply new values.
type StepConfig interface {
	Step() time.Duration
	Enabled() bool
	RequireValid() error
}

// StaticConfig is a fixed StepConfig.
type StaticConfig struct {
	Every time.Duration
	On    bool
}

func (c StaticConfig) Step() time.Duration { return c.Every }
func (c StaticConfig) Enabled() bool       { return c.On }

// RequireValid rejects steps that cannot be expressed in whole milliseconds.
func (c StaticConfig) RequireValid() error {
	return ValidateStep(c.Every)
}

// ValidateStep checks that step is usable as a publish period.
func ValidateStep(step time.Duration) error {
	if step <= 0 {
		return &ConfigError{Field: "step", Reason: "must be > 0"}
	}
	if step < time.Millisecond {
		return &ConfigError{Field: "step", Reason: fmt.Sprintf("must be at least 1ms, got %s", step)}
	}
	return nil
}
