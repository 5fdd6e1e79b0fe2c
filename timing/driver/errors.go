package driver

import (
	"errors"
	"strings"
)

// ErrConfiguration is returned when the system is not wired up correctly.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError lists every problem found while configuring.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// Is reports a match against ErrConfiguration.
func (e *ConfigurationError) Is(err error) bool {
	return err == ErrConfiguration
}

func (e *ConfigurationError) add(problem string) {
	e.Problems = append(e.Problems, problem)
}

func (e *ConfigurationError) empty() bool {
	return len(e.Problems) == 0
}
