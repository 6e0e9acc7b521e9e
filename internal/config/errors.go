package config

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every error that rejects a config's content.
var ErrInvalid = errors.New("invalid config")

// FieldError names the key that failed validation, e.g. "push.step".
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrInvalid }

func fieldErr(path, format string, args ...any) error {
	return &FieldError{Path: path, Err: fmt.Errorf(format, args...)}
}
