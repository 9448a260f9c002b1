package registry

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned by Update and Estimate for an index outside [0, Size()).
var ErrIndexOutOfRange = errors.New("sketch index out of range")

// ConfigError describes a sketch configuration that cannot be built.
// Nothing is constructed when a ConfigError is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid sketch configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid sketch configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func indexError(index, size int) error {
	return fmt.Errorf("%w: index %d, %d sketches", ErrIndexOutOfRange, index, size)
}
