// Package config provides configuration loading and management.
//
// Configuration is layered: built-in defaults, then the YAML file, then
// THREADPROBE_* environment variables.
package config

import (
	"time"

	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

// Config is the threadprobe configuration file.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Profiler    ProfilerConfig    `yaml:"profiler"`
	MemoryProbe MemoryProbeConfig `yaml:"memory_probe"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"THREADPROBE_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"THREADPROBE_LOG_PRETTY"`
}

// ProfilerConfig controls the sampling profiler.
type ProfilerConfig struct {
	Interval       time.Duration `yaml:"interval" env:"THREADPROBE_INTERVAL"`
	MaxThreads     int           `yaml:"max_threads" env:"THREADPROBE_MAX_THREADS"`
	MaxFrames      int           `yaml:"max_frames" env:"THREADPROBE_MAX_FRAMES"`
	MaxSamples     int           `yaml:"max_samples" env:"THREADPROBE_MAX_SAMPLES"`
	SkipIdle       bool          `yaml:"skip_idle" env:"THREADPROBE_SKIP_IDLE"`
	SuspendTimeout time.Duration `yaml:"suspend_timeout" env:"THREADPROBE_SUSPEND_TIMEOUT"`
	SuspendBudget  time.Duration `yaml:"suspend_budget" env:"THREADPROBE_SUSPEND_BUDGET"`
	StopTimeout    time.Duration `yaml:"stop_timeout" env:"THREADPROBE_STOP_TIMEOUT"`
	Release        string        `yaml:"release,omitempty" env:"THREADPROBE_RELEASE"`
	Environment    string        `yaml:"environment,omitempty" env:"THREADPROBE_ENVIRONMENT"`
}

// MemoryProbeConfig selects how untrusted pointers are validated.
type MemoryProbeConfig struct {
	Mechanism memsafe.Mechanism `yaml:"mechanism" env:"THREADPROBE_MEMORY_PROBE"`
}

// MetricsConfig controls the Prometheus dump written after a profile run.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"THREADPROBE_METRICS"`
}
