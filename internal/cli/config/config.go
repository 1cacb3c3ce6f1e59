// Package config implements "threadprobe config".
package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	cfgpkg "github.com/coral-mesh/threadprobe/internal/config"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd(env *helpers.Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the threadprobe configuration",
	}

	cmd.AddCommand(newShowCmd(env))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPathCmd())
	return cmd
}

func newShowCmd(env *helpers.Env) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (defaults, file and environment merged)",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(env.Config()); err != nil {
					return err
				}
				return enc.Close()
			case "json":
				return helpers.Print(cmd, format, []helpers.OutputFormat{helpers.FormatJSON}, env.Config())
			default:
				return fmt.Errorf("unsupported format %q, must be one of: yaml, json", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "Output format (yaml, json)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgpkg.NewLoader().Path()
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("config file %s: %w", path, err)
			}
			if _, err := cfgpkg.LoadFile(path); err != nil {
				return err
			}
			cmd.Printf("%s is valid\n", path)
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := cfgpkg.NewLoader()
			if _, err := os.Stat(loader.Path()); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", loader.Path())
			}
			if err := loader.Save(cfgpkg.Default()); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", loader.Path())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(cfgpkg.NewLoader().Path())
		},
	}
}
