// Package probe implements "threadprobe probe".
package probe

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

// Result is one readability check.
type Result struct {
	Mechanism memsafe.Mechanism `json:"mechanism" header:"MECHANISM"`
	Check     string            `json:"check" header:"CHECK"`
	Address   string            `json:"address" header:"ADDRESS"`
	Length    int               `json:"length" header:"LENGTH"`
	Readable  bool              `json:"readable" header:"READABLE"`
	Expected  string            `json:"expected,omitempty" header:"EXPECTED"`
	Pass      bool              `json:"pass" header:"PASS"`
}

type check struct {
	name string
	addr uintptr
	n    int
	want bool
	keep []byte // holds the checked buffer alive while it is probed
}

var selfTestAnchor = [64]byte{1}

// NewProbeCmd creates the probe command.
func NewProbeCmd(env *helpers.Env) *cobra.Command {
	var (
		format    string
		length    int
		mechanism string
	)

	cmd := &cobra.Command{
		Use:   "probe [ADDRESS...]",
		Short: "Check whether process memory is readable",
		Long: `Ask the memory probe whether ranges of this process's address space are
readable, without touching them.

Without arguments a self-test runs against ranges whose answer is known.
Addresses accept 0x-prefixed hex or decimal.

Examples:
  threadprobe probe
  threadprobe probe --mechanism region 0x7ffd5e000000 --length 4096`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.AllFormats); err != nil {
				return err
			}
			mechanisms, err := selectMechanisms(mechanism, env)
			if err != nil {
				return err
			}

			var checks []check
			if len(args) == 0 {
				checks = selfTest()
			} else {
				for _, arg := range args {
					addr, err := strconv.ParseUint(arg, 0, 64)
					if err != nil {
						return fmt.Errorf("invalid address %q: %w", arg, err)
					}
					checks = append(checks, check{name: "address", addr: uintptr(addr), n: length})
				}
			}

			results, err := Run(mechanisms, checks, len(args) == 0)
			if err != nil {
				return err
			}
			if err := helpers.Print(cmd, format, helpers.AllFormats, results); err != nil {
				return err
			}
			for _, r := range results {
				if !r.Pass {
					return fmt.Errorf("self-test failed: %s via %s", r.Check, r.Mechanism)
				}
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.AllFormats)
	cmd.Flags().IntVarP(&length, "length", "n", 8, "Bytes to check at each address")
	cmd.Flags().StringVarP(&mechanism, "mechanism", "m", "", "Probe mechanism: syscall, region or all (default from config)")

	return cmd
}

func selectMechanisms(name string, env *helpers.Env) ([]memsafe.Mechanism, error) {
	switch name {
	case "":
		return []memsafe.Mechanism{env.Config().MemoryProbe.Mechanism}, nil
	case "all":
		return []memsafe.Mechanism{memsafe.MechanismSyscall, memsafe.MechanismRegion}, nil
	case string(memsafe.MechanismSyscall), string(memsafe.MechanismRegion):
		return []memsafe.Mechanism{memsafe.Mechanism(name)}, nil
	default:
		return nil, fmt.Errorf("unknown mechanism %q", name)
	}
}

func selfTest() []check {
	heap := make([]byte, 4096)
	pageSize := uintptr(os.Getpagesize())
	return []check{
		{name: "heap buffer", addr: uintptr(unsafe.Pointer(&heap[0])), n: len(heap), want: true, keep: heap},
		{name: "package data", addr: uintptr(unsafe.Pointer(&selfTestAnchor)), n: len(selfTestAnchor), want: true},
		{name: "null page", addr: 0, n: 8, want: false},
		{name: "low address", addr: 0x10, n: 8, want: false},
		{name: "top of address space", addr: ^uintptr(0) &^ (pageSize - 1), n: 8, want: false},
	}
}

// Run evaluates checks with every mechanism. When graded is set each result
// is compared with the check's expected answer, otherwise every result passes.
func Run(mechanisms []memsafe.Mechanism, checks []check, graded bool) ([]Result, error) {
	var out []Result
	for _, m := range mechanisms {
		p, err := memsafe.New(m)
		if err != nil {
			return nil, err
		}
		for _, c := range checks {
			ok := p.IsReadable(c.addr, c.n)
			r := Result{
				Mechanism: m,
				Check:     c.name,
				Address:   fmt.Sprintf("%#x", c.addr),
				Length:    c.n,
				Readable:  ok,
				Pass:      true,
			}
			if graded {
				r.Expected = strconv.FormatBool(c.want)
				r.Pass = ok == c.want
			}
			out = append(out, r)
			runtime.KeepAlive(c.keep)
		}
	}
	return out, nil
}
