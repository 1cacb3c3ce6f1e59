// Package cli wires the threadprobe commands together.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	configcmd "github.com/coral-mesh/threadprobe/internal/cli/config"
	"github.com/coral-mesh/threadprobe/internal/cli/doctor"
	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	"github.com/coral-mesh/threadprobe/internal/cli/probe"
	"github.com/coral-mesh/threadprobe/internal/cli/profile"
	"github.com/coral-mesh/threadprobe/internal/cli/threads"
	"github.com/coral-mesh/threadprobe/pkg/version"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	env := helpers.NewEnv()

	rootCmd := &cobra.Command{
		Use:   "threadprobe",
		Short: "Thread introspection and sampling for the current process",
		Long: `threadprobe enumerates the threads of its own process, inspects their
scheduling state and stacks, suspends them safely and samples them into
profile artifacts.

Memory behind untrusted pointers is only read after an out-of-band
readability check, so inspection never faults the process.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.Load()
		},
	}
	env.AddFlags(rootCmd)

	rootCmd.AddCommand(threads.NewThreadsCmd(env))
	rootCmd.AddCommand(probe.NewProbeCmd(env))
	rootCmd.AddCommand(profile.NewProfileCmd(env))
	rootCmd.AddCommand(doctor.NewDoctorCmd(env))
	rootCmd.AddCommand(configcmd.NewConfigCmd(env))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("threadprobe version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
