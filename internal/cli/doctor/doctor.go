// Package doctor implements "threadprobe doctor".
package doctor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	"github.com/coral-mesh/threadprobe/internal/runtime"
)

// Row is one line of the table output.
type Row struct {
	Check string `header:"CHECK"`
	Value string `header:"VALUE"`
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd(env *helpers.Env) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Report which threadprobe features work on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			supported := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON}
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}
			enum, err := env.Enumerator()
			if err != nil {
				return err
			}

			report := runtime.NewDetector(env.Logger("doctor"), enum).Detect(cmd.Context())
			if format == string(helpers.FormatJSON) {
				return helpers.Print(cmd, format, supported, report)
			}
			return helpers.Print(cmd, format, supported, Rows(report))
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON})
	return cmd
}

// Rows flattens a report for table output.
func Rows(r *runtime.Report) []Row {
	yesNo := func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	}

	rows := []Row{
		{"platform", fmt.Sprintf("%s/%s %s", r.OS, r.Arch, r.Platform)},
		{"kernel", r.Kernel},
		{"go", r.GoVersion},
		{"cpus", strconv.Itoa(r.CPUs)},
		{"threads", strconv.Itoa(r.Threads)},
		{"cgo", yesNo(r.CGO)},
		{"thread suspend", yesNo(r.Suspend)},
		{"queue labels", yesNo(r.QueueLabels)},
	}
	for _, m := range r.Mechanisms {
		v := yesNo(m.Available)
		if m.Error != "" {
			v += " (" + m.Error + ")"
		}
		rows = append(rows, Row{"probe " + string(m.Name), v})
	}
	if r.OS == "linux" {
		caps := "none"
		if len(r.Capabilities) > 0 {
			caps = strings.Join(r.Capabilities, ",")
		}
		rows = append(rows, Row{"capabilities", caps})
	}
	return rows
}
