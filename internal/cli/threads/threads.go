// Package threads implements "threadprobe threads".
package threads

import (
	"context"
	"fmt"
	"math"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	"github.com/coral-mesh/threadprobe/internal/thread"
)

// Row is one thread in the listing.
type Row struct {
	TID        uint64        `json:"tid" header:"TID"`
	Name       string        `json:"name" header:"NAME"`
	State      string        `json:"state" header:"STATE"`
	Priority   int           `json:"priority" header:"PRIO"`
	QoS        string        `json:"qos" header:"QOS"`
	CPUPercent float64       `json:"cpu_percent" header:"CPU%"`
	UserTime   time.Duration `json:"user_time_ns" header:"USER"`
	SystemTime time.Duration `json:"system_time_ns" header:"SYS"`
	Idle       bool          `json:"idle" header:"IDLE"`
	StackKiB   uint64        `json:"stack_kib" header:"STACK_KIB"`
	Queue      string        `json:"queue,omitempty" header:"QUEUE"`
	Current    bool          `json:"current" header:"SELF"`
	Suspend    string        `json:"suspend,omitempty" header:"SUSPEND"`
}

// NewThreadsCmd creates the threads command.
func NewThreadsCmd(env *helpers.Env) *cobra.Command {
	var (
		format      string
		suspend     bool
		watch       time.Duration
		excludeSelf bool
	)

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List the threads of this process",
		Long: `List every thread of the threadprobe process with its scheduling state,
CPU usage, stack bounds and queue label.

With --suspend, each other thread is suspended and resumed once and the
round trip is reported, which checks that suspension works on this host.

Examples:
  # One-shot listing
  threadprobe threads

  # Check suspension, JSON output
  threadprobe threads --suspend -o json

  # Refresh every second until interrupted
  threadprobe threads --watch 1s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.AllFormats); err != nil {
				return err
			}
			enum, err := env.Enumerator()
			if err != nil {
				return err
			}

			if watch <= 0 {
				return helpers.Print(cmd, format, helpers.AllFormats, Snapshot(enum, suspend, excludeSelf))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watchThreads(ctx, cmd, format, watch, func() []Row {
				return Snapshot(enum, suspend, excludeSelf)
			})
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.AllFormats)
	cmd.Flags().BoolVar(&suspend, "suspend", false, "Suspend and resume each other thread once and report the round trip")
	cmd.Flags().DurationVar(&watch, "watch", 0, "Refresh interval; zero lists once")
	cmd.Flags().BoolVar(&excludeSelf, "exclude-self", false, "Leave out the thread running the command")

	return cmd
}

func watchThreads(ctx context.Context, cmd *cobra.Command, format string, every time.Duration, snap func() []Row) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := helpers.Print(cmd, format, helpers.AllFormats, snap()); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Snapshot describes every thread of the process, sorted by TID.
func Snapshot(enum *thread.Enumerator, suspend, excludeSelf bool) []Row {
	// Pin so the current handle keeps naming this goroutine's thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	others, self := enum.AllExcludingCurrent()
	defer thread.CloseAll(others)

	rows := make([]Row, 0, len(others)+1)
	if !excludeSelf && self.NativeID() != 0 {
		r := describe(self)
		r.Current = true
		rows = append(rows, r)
	}
	for _, h := range others {
		r := describe(h)
		if suspend {
			r.Suspend = roundTrip(h)
		}
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].TID < rows[j].TID })
	return rows
}

func describe(h *thread.Handle) Row {
	cpu := h.CPUInfo()
	qos := h.QoS()
	r := Row{
		TID:        h.TID(),
		Name:       h.Name(),
		State:      cpu.RunState.String(),
		Priority:   h.Priority(),
		QoS:        qos.Class.String(),
		CPUPercent: math.Round(cpu.UsagePercent*1000) / 10,
		UserTime:   cpu.UserTime,
		SystemTime: cpu.SystemTime,
		Idle:       h.IsIdle(),
		StackKiB:   uint64(h.StackBounds().Size()) / 1024,
		Queue:      h.DispatchQueueLabel(),
	}
	if qos.RelativePriority != 0 {
		r.QoS = fmt.Sprintf("%s%+d", r.QoS, qos.RelativePriority)
	}
	return r
}

func roundTrip(h *thread.Handle) string {
	start := time.Now()
	if !h.WithSuspended(func() {}) {
		return "failed"
	}
	return helpers.FormatDuration(time.Since(start))
}
