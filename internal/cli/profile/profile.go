// Package profile implements "threadprobe profile".
package profile

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	"github.com/coral-mesh/threadprobe/internal/constants"
	"github.com/coral-mesh/threadprobe/internal/errors"
	"github.com/coral-mesh/threadprobe/internal/privilege"
	"github.com/coral-mesh/threadprobe/internal/profiler"
	"github.com/coral-mesh/threadprobe/pkg/version"
)

// Options are the inputs of one profiling run.
type Options struct {
	Duration     time.Duration
	Workers      int
	PprofPath    string
	EnvelopePath string
	MetricsPath  string
	Name         string
}

// Summary describes a finished run.
type Summary struct {
	Transaction string        `json:"transaction_id" header:"TRANSACTION"`
	Duration    time.Duration `json:"duration_ns" header:"DURATION"`
	Samples     int           `json:"samples" header:"SAMPLES"`
	Envelope    string        `json:"envelope,omitempty" header:"ENVELOPE"`
	Pprof       string        `json:"pprof,omitempty" header:"PPROF"`
	Metrics     string        `json:"metrics,omitempty" header:"METRICS"`
}

// NewProfileCmd creates the profile command.
func NewProfileCmd(env *helpers.Env) *cobra.Command {
	var (
		opts   Options
		format string
	)

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Sample this process's threads and write profile artifacts",
		Long: `Sample the threads of the threadprobe process for a fixed duration, then
write the samples as a JSON envelope item and/or a pprof profile.

--workers starts busy threads so there is something to observe.

Examples:
  # 5s run with 4 busy threads, pprof output
  threadprobe profile --workers 4 --pprof threads.pb.gz

  # Envelope item plus Prometheus metrics on stderr
  threadprobe profile --duration 2s --envelope profile.envelope --metrics -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.AllFormats); err != nil {
				return err
			}
			if opts.Duration <= 0 {
				return fmt.Errorf("--duration must be positive")
			}
			if opts.MetricsPath == "" && env.Config().Metrics.Enabled {
				opts.MetricsPath = "-"
			}
			enum, err := env.Enumerator()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := env.Logger("profile")
			reg := prometheus.NewRegistry()
			pc := env.Config().ProfilerConfig()
			if pc.Release == "" {
				pc.Release = version.Release()
			}
			p, err := profiler.New(pc, logger,
				profiler.WithEnumerator(enum),
				profiler.WithRegisterer(reg),
			)
			if err != nil {
				return err
			}

			summary, err := Run(ctx, p, reg, opts, logger, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return helpers.Print(cmd, format, helpers.AllFormats, summary)
		},
	}

	cmd.Flags().DurationVarP(&opts.Duration, "duration", "d", constants.DefaultProfileDuration, "How long to sample")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Busy threads to run while sampling")
	cmd.Flags().StringVar(&opts.PprofPath, "pprof", "", "Write a gzipped pprof profile to this file")
	cmd.Flags().StringVar(&opts.EnvelopePath, "envelope", "", "Write the envelope item to this file")
	cmd.Flags().StringVar(&opts.MetricsPath, "metrics", "", `Write sampler metrics in Prometheus text format to this file ("-" for stderr)`)
	cmd.Flags().StringVar(&opts.Name, "name", "threadprobe profile", "Transaction name recorded in the envelope")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.AllFormats)

	return cmd
}

// Run profiles for opts.Duration, or until ctx ends, and writes the requested
// artifacts.
func Run(ctx context.Context, p *profiler.Profiler, gatherer prometheus.Gatherer, opts Options, logger zerolog.Logger, stderr io.Writer) (*Summary, error) {
	workCtx, stopWork := context.WithCancel(ctx)
	startWorkers(workCtx, opts.Workers)

	tx := profiler.Transaction{
		ID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Name:    opts.Name,
		TraceID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		Start:   time.Now(),
	}

	p.Start()
	select {
	case <-ctx.Done():
		logger.Info().Msg("Interrupted, stopping early")
	case <-time.After(opts.Duration):
	}
	p.Stop()
	tx.End = time.Now()
	stopWork()

	summary := &Summary{
		Transaction: tx.ID,
		Duration:    tx.End.Sub(tx.Start),
		Samples:     p.SampleCount(),
	}

	if opts.EnvelopePath != "" {
		item, ok := p.BuildEnvelopeItemForTransaction(tx)
		if !ok {
			logger.Warn().Msg("No samples recorded, envelope not written")
		} else {
			if err := writeFile(opts.EnvelopePath, logger, func(w io.Writer) error {
				_, err := item.WriteTo(w)
				return err
			}); err != nil {
				return nil, fmt.Errorf("failed to write envelope: %w", err)
			}
			summary.Envelope = opts.EnvelopePath
		}
	}

	if opts.PprofPath != "" && summary.Samples == 0 {
		logger.Warn().Msg("No samples recorded, pprof profile not written")
	} else if opts.PprofPath != "" {
		if err := writeFile(opts.PprofPath, logger, func(w io.Writer) error {
			return p.WritePprof(w, tx.Start, tx.End)
		}); err != nil {
			return nil, fmt.Errorf("failed to write pprof profile: %w", err)
		}
		summary.Pprof = opts.PprofPath
	}

	if opts.MetricsPath != "" {
		write := func(w io.Writer) error { return dumpMetrics(gatherer, w) }
		var err error
		if opts.MetricsPath == "-" {
			err = write(stderr)
		} else {
			err = writeFile(opts.MetricsPath, logger, write)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write metrics: %w", err)
		}
		summary.Metrics = opts.MetricsPath
	}

	return summary, nil
}

func writeFile(path string, logger zerolog.Logger, fn func(io.Writer) error) error {
	//nolint:gosec // G304: Path comes from the command line.
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer errors.DeferClose(logger, f, "failed to close "+path)
	if err := privilege.FixFileOwnership(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to fix file ownership")
	}
	return fn(f)
}

func dumpMetrics(g prometheus.Gatherer, w io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
