package env

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration         = errors.New("environment misconfigured")
	ErrInvalidState          = errors.New("invalid environment state")
	ErrIndexExhausted        = errors.New("step index beyond data source")
	ErrInvalidAction         = errors.New("invalid action")
	ErrUnsupportedRenderMode = errors.New("unsupported render mode")
)

// ConfigurationError reports a data source or parameter set the environment cannot run on.
type ConfigurationError struct {
	MissingColumns []string
	Reason         string
}

func (e *ConfigurationError) Error() string {
	if len(e.MissingColumns) > 0 {
		return fmt.Sprintf("%v: data source missing columns [%s]", ErrConfiguration, strings.Join(e.MissingColumns, ", "))
	}
	return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// IndexExhaustedError is raised when an observation is requested past the last row.
type IndexExhaustedError struct {
	Step int
	Rows int
}

func (e *IndexExhaustedError) Error() string {
	return fmt.Sprintf("%v: step %d, rows %d", ErrIndexExhausted, e.Step, e.Rows)
}

func (e *IndexExhaustedError) Unwrap() error { return ErrIndexExhausted }
