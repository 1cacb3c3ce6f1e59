package runtime

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Linux capability bit positions (from include/uapi/linux/capability.h) that
// change what threadprobe can see.
const (
	capSysPtrace = 19 // CAP_SYS_PTRACE
	capSysAdmin  = 21 // CAP_SYS_ADMIN
	capSysNice   = 23 // CAP_SYS_NICE
	capPerfmon   = 38 // CAP_PERFMON (kernel 5.8+)
)

var capabilityNames = []struct {
	bit  int
	name string
}{
	{capSysPtrace, "CAP_SYS_PTRACE"},
	{capSysAdmin, "CAP_SYS_ADMIN"},
	{capSysNice, "CAP_SYS_NICE"},
	{capPerfmon, "CAP_PERFMON"},
}

// effectiveCapabilities lists the relevant capabilities present in the CapEff
// mask of the status file at path.
func effectiveCapabilities(path string) ([]string, error) {
	mask, err := readCapabilityBitmask(path, "CapEff")
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, c := range capabilityNames {
		if hasCapability(mask, c.bit) {
			names = append(names, c.name)
		}
	}
	return names, nil
}

// readCapabilityBitmask reads a capability bitmask from /proc/self/status.
func readCapabilityBitmask(procStatusPath, capName string) (uint64, error) {
	file, err := os.Open(procStatusPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", procStatusPath, err)
	}
	defer file.Close() // nolint:errcheck

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, capName+":") {
			continue
		}

		// Format: "CapEff:\t00000000a80435fb"
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return 0, fmt.Errorf("invalid %s format: %s", capName, line)
		}

		bitmask, err := strconv.ParseUint(parts[1], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s bitmask: %w", capName, err)
		}
		return bitmask, nil
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", procStatusPath, err)
	}
	return 0, fmt.Errorf("%s not found in %s", capName, procStatusPath)
}

func hasCapability(bitmask uint64, capBit int) bool {
	return (bitmask & (1 << uint(capBit))) != 0
}
