package helpers

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/threadprobe/internal/config"
	"github.com/coral-mesh/threadprobe/internal/logging"
	"github.com/coral-mesh/threadprobe/internal/thread"
)

// Env carries the configuration and logger shared by every command. It is
// filled by the root command before any subcommand runs.
type Env struct {
	configPath string
	logLevel   string
	noColor    bool

	cfg    *config.Config
	logger zerolog.Logger
}

// NewEnv returns an Env holding the defaults and a disabled logger.
func NewEnv() *Env {
	return &Env{cfg: config.Default(), logger: zerolog.Nop()}
}

// AddFlags registers the global flags on cmd.
func (e *Env) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "Config file (default $THREADPROBE_CONFIG/config.yaml or ~/.threadprobe/config.yaml)")
	flags.StringVar(&e.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")
	flags.BoolVar(&e.noColor, "no-color", false, "Emit JSON logs instead of colored console output")
}

// Load reads the configuration and builds the logger.
func (e *Env) Load() error {
	var (
		cfg *config.Config
		err error
	)
	if e.configPath != "" {
		cfg, err = config.LoadFile(e.configPath)
	} else {
		cfg, err = config.NewLoader().Load()
	}
	if err != nil {
		return err
	}

	if e.logLevel != "" {
		cfg.Logging.Level = e.logLevel
	}
	if e.noColor {
		cfg.Logging.Pretty = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.cfg = cfg
	e.logger = logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	return nil
}

// Config returns the loaded configuration.
func (e *Env) Config() *config.Config {
	return e.cfg
}

// Logger returns a logger tagged with component.
func (e *Env) Logger(component string) zerolog.Logger {
	return e.logger.With().Str("component", component).Logger()
}

// Enumerator builds a thread enumerator using the configured memory probe and
// suspend limits.
func (e *Env) Enumerator() (*thread.Enumerator, error) {
	probe, err := e.cfg.Probe()
	if err != nil {
		return nil, fmt.Errorf("memory probe: %w", err)
	}
	p := e.cfg.Profiler
	return thread.NewEnumerator(e.logger,
		thread.WithProbe(probe),
		thread.WithSuspendLimits(p.SuspendTimeout, p.SuspendBudget),
	), nil
}
