package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "disabled": true,
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.Logging.Level != "" && !logLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}

	p := c.Profiler
	if p.Interval < time.Millisecond {
		add("profiler.interval", "interval must be at least 1ms")
	}
	if p.MaxThreads <= 0 {
		add("profiler.max_threads", "max_threads must be positive")
	}
	if p.MaxFrames <= 0 || p.MaxFrames > 512 {
		add("profiler.max_frames", "max_frames must be between 1 and 512")
	}
	if p.MaxSamples <= 0 {
		add("profiler.max_samples", "max_samples must be positive")
	}
	if p.SuspendTimeout <= 0 {
		add("profiler.suspend_timeout", "suspend_timeout must be positive")
	}
	if p.SuspendBudget < p.SuspendTimeout {
		add("profiler.suspend_budget", "suspend_budget must not be shorter than suspend_timeout")
	}
	if p.StopTimeout <= 0 {
		add("profiler.stop_timeout", "stop_timeout must be positive")
	}

	switch c.MemoryProbe.Mechanism {
	case memsafe.MechanismSyscall, memsafe.MechanismRegion:
	default:
		add("memory_probe.mechanism", fmt.Sprintf("mechanism must be %q or %q", memsafe.MechanismSyscall, memsafe.MechanismRegion))
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}
