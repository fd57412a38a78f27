package warmer

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid run configuration")

var (
	// errSuperseded aborts a tick whose run was replaced by a newer Start.
	errSuperseded = errors.New("run superseded")
	// errUnchanged aborts an Update that has nothing to write.
	errUnchanged = errors.New("run unchanged")
)

// ConfigError reports a rejected run parameter.
type ConfigError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s=%d: %s", e.Field, e.Value, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidConfig) match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// FetchError records a failed warm request. It is logged and counted, never
// fatal to the run.
type FetchError struct {
	ItemID int64
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("warm item %d (%s): %v", e.ItemID, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
