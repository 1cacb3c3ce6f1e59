//go:build linux

package memsafe

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// pagesPerCall bounds the number of remote iovecs handed to one
// process_vm_readv call. It stays well below IOV_MAX.
const pagesPerCall = 64

// anchor is a word that is always mapped; it backs the startup self test.
var anchor uint64 = 1

func newProbe(m Mechanism) (Probe, error) {
	switch m {
	case MechanismRegion:
		fs, err := procfs.NewDefaultFS()
		if err != nil {
			return nil, fmt.Errorf("failed to open procfs: %w", err)
		}
		return &regionProbe{fs: fs}, nil
	default:
		p := &vmReadProbe{pid: os.Getpid()}
		if err := p.selfTest(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// vmReadProbe asks the kernel to copy from our own address space with
// process_vm_readv. An unmapped or unreadable page makes the call fail with
// EFAULT or return a short count; no signal is ever raised in this process.
type vmReadProbe struct {
	pid int
}

// selfTest fails when process_vm_readv is filtered, e.g. by a seccomp profile.
func (p *vmReadProbe) selfTest() error {
	var dst [8]byte
	n, err := p.copyIn(uintptr(unsafe.Pointer(&anchor)), dst[:])
	if err != nil {
		return fmt.Errorf("process_vm_readv unavailable: %w", err)
	}
	if n != len(dst) {
		return fmt.Errorf("process_vm_readv short read: %d of %d bytes", n, len(dst))
	}
	return nil
}

// IsReadable touches one byte of every page the range spans. Permissions are
// page granular, so this answers for the whole range without copying it.
func (p *vmReadProbe) IsReadable(addr uintptr, n int) bool {
	if !validRange(addr, n) {
		return false
	}

	var (
		remote [pagesPerCall]unix.RemoteIovec
		sink   [pagesPerCall]byte
	)
	end := addr + uintptr(n)
	cursor := addr
	for cursor < end {
		count := 0
		for cursor < end && count < pagesPerCall {
			remote[count] = unix.RemoteIovec{Base: cursor, Len: 1}
			count++
			next := pageFloor(cursor) + pageSize
			if next <= cursor {
				cursor = end
				break
			}
			cursor = next
		}

		local := []unix.Iovec{{Base: &sink[0]}}
		local[0].SetLen(count)
		read, err := unix.ProcessVMReadv(p.pid, local, remote[:count], 0)
		if err != nil || read != count {
			return false
		}
	}
	return true
}

func (p *vmReadProbe) Read(addr uintptr, dst []byte) bool {
	if !validRange(addr, len(dst)) {
		return false
	}
	n, err := p.copyIn(addr, dst)
	return err == nil && n == len(dst)
}

func (p *vmReadProbe) copyIn(addr uintptr, dst []byte) (int, error) {
	local := []unix.Iovec{{Base: &dst[0]}}
	local[0].SetLen(len(dst))
	remote := []unix.RemoteIovec{{Base: addr, Len: len(dst)}}
	return unix.ProcessVMReadv(p.pid, local, remote, 0)
}

// regionProbe answers from /proc/self/maps. It allocates and reads a file on
// every call, so it must not be used while another thread is suspended.
type regionProbe struct {
	fs procfs.FS
}

func (p *regionProbe) IsReadable(addr uintptr, n int) bool {
	if !validRange(addr, n) {
		return false
	}
	regions, err := p.regions()
	if err != nil {
		return false
	}
	return covered(regions, addr, addr+uintptr(n))
}

func (p *regionProbe) Read(addr uintptr, dst []byte) bool {
	if !p.IsReadable(addr, len(dst)) {
		return false
	}
	// The range was mapped readable a moment ago; see the package comment on
	// staleness.
	src := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(dst)) //nolint:govet // address validated above
	copy(dst, src)
	return true
}

func (p *regionProbe) regions() ([]region, error) {
	self, err := p.fs.Self()
	if err != nil {
		return nil, err
	}
	maps, err := self.ProcMaps()
	if err != nil {
		return nil, err
	}

	regions := make([]region, 0, len(maps))
	for _, m := range maps {
		regions = append(regions, region{
			start:    m.StartAddr,
			end:      m.EndAddr,
			readable: m.Perms != nil && m.Perms.Read,
		})
	}
	return regions, nil
}
