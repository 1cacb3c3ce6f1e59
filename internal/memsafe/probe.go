// Package memsafe answers whether a range of the process address space can be
// read without faulting, and copies bytes out of such ranges.
//
// Every pointer handed back by the kernel or by a threading runtime is treated
// as untrusted until it has been checked here. Checks are made out of band (a
// kernel mediated copy or a region table query), never by touching the memory
// directly and recovering from a fault.
//
// A positive answer is only valid at the instant it was computed: the range may
// be unmapped concurrently right after the check returns. Callers must treat
// true as "safe to attempt now", not as a lasting guarantee.
package memsafe

import (
	"fmt"
	"os"
)

// Mechanism names an out-of-band probing strategy.
type Mechanism string

const (
	// MechanismSyscall asks the kernel to copy from the range on our behalf
	// (process_vm_readv on Linux, mach_vm_read_overwrite on Darwin).
	MechanismSyscall Mechanism = "syscall"
	// MechanismRegion looks the range up in the virtual memory region table
	// (/proc/self/maps on Linux, mach_vm_region on Darwin).
	MechanismRegion Mechanism = "region"
)

// Probe checks and copies process memory without raising a fault.
type Probe interface {
	// IsReadable reports whether all of [addr, addr+n) is mapped readable.
	IsReadable(addr uintptr, n int) bool
	// Read copies len(dst) bytes starting at addr. It is all or nothing.
	Read(addr uintptr, dst []byte) bool
}

var (
	pageSize     = uintptr(os.Getpagesize())
	defaultProbe = firstAvailable(MechanismSyscall, MechanismRegion)
)

// New returns a probe using the requested mechanism.
func New(m Mechanism) (Probe, error) {
	switch m {
	case MechanismSyscall, MechanismRegion:
		return newProbe(m)
	default:
		return nil, fmt.Errorf("unknown memory probe mechanism %q", m)
	}
}

// Default returns the process wide probe.
func Default() Probe {
	return defaultProbe
}

// IsReadable reports whether [addr, addr+n) is readable using the default probe.
func IsReadable(addr uintptr, n int) bool {
	return defaultProbe.IsReadable(addr, n)
}

// Read copies from addr into dst using the default probe.
func Read(addr uintptr, dst []byte) bool {
	return defaultProbe.Read(addr, dst)
}

// firstAvailable returns the first mechanism that works on this host.
func firstAvailable(ms ...Mechanism) Probe {
	for _, m := range ms {
		if p, err := newProbe(m); err == nil {
			return p
		}
	}
	return unavailableProbe{}
}

// validRange rejects empty ranges, the null page and ranges that wrap around
// the top of the address space.
func validRange(addr uintptr, n int) bool {
	if n <= 0 || addr < pageSize {
		return false
	}
	end := addr + uintptr(n)
	return end > addr
}

// pageFloor rounds addr down to its page boundary.
func pageFloor(addr uintptr) uintptr {
	return addr &^ (pageSize - 1)
}

// unavailableProbe answers false for every range. It is used where no
// out-of-band mechanism exists.
type unavailableProbe struct{}

func (unavailableProbe) IsReadable(uintptr, int) bool { return false }

func (unavailableProbe) Read(uintptr, []byte) bool { return false }
