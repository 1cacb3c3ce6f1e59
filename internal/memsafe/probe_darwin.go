//go:build darwin && cgo

package memsafe

/*
#include <mach/mach.h>
#include <mach/mach_vm.h>
#include <stdint.h>

// Walks the region table from addr and requires contiguous readable regions
// up to addr+size. mach_vm_region returns the first region at or above the
// cursor, so a region starting past the cursor means a hole.
static int tp_region_readable(mach_vm_address_t addr, mach_vm_size_t size) {
	mach_vm_address_t end = addr + size;
	if (end <= addr) {
		return 0;
	}
	mach_vm_address_t cursor = addr;
	while (cursor < end) {
		mach_vm_address_t start = cursor;
		mach_vm_size_t length = 0;
		vm_region_basic_info_data_64_t info;
		mach_msg_type_number_t count = VM_REGION_BASIC_INFO_COUNT_64;
		mach_port_t object = MACH_PORT_NULL;
		kern_return_t kr = mach_vm_region(mach_task_self(), &start, &length,
			VM_REGION_BASIC_INFO_64, (vm_region_info_t)&info, &count, &object);
		if (kr != KERN_SUCCESS || start > cursor || (info.protection & VM_PROT_READ) == 0) {
			return 0;
		}
		cursor = start + length;
	}
	return 1;
}

// Copies one byte per page through the kernel.
static int tp_pages_readable(mach_vm_address_t addr, mach_vm_size_t size, mach_vm_size_t page) {
	mach_vm_address_t end = addr + size;
	if (end <= addr) {
		return 0;
	}
	mach_vm_address_t cursor = addr;
	while (cursor < end) {
		uint8_t sink = 0;
		mach_vm_size_t out = 0;
		kern_return_t kr = mach_vm_read_overwrite(mach_task_self(), cursor, 1,
			(mach_vm_address_t)&sink, &out);
		if (kr != KERN_SUCCESS || out != 1) {
			return 0;
		}
		mach_vm_address_t next = (cursor & ~(page - 1)) + page;
		if (next <= cursor) {
			break;
		}
		cursor = next;
	}
	return 1;
}

static int tp_copy(mach_vm_address_t addr, void *dst, mach_vm_size_t size) {
	mach_vm_size_t out = 0;
	kern_return_t kr = mach_vm_read_overwrite(mach_task_self(), addr, size,
		(mach_vm_address_t)dst, &out);
	return kr == KERN_SUCCESS && out == size;
}
*/
import "C"

import "unsafe"

func newProbe(m Mechanism) (Probe, error) {
	if m == MechanismRegion {
		return machRegionProbe{}, nil
	}
	return machReadProbe{}, nil
}

// machReadProbe asks the kernel to copy through mach_vm_read_overwrite, which
// returns KERN_INVALID_ADDRESS or KERN_PROTECTION_FAILURE instead of faulting.
type machReadProbe struct{}

func (machReadProbe) IsReadable(addr uintptr, n int) bool {
	if !validRange(addr, n) {
		return false
	}
	return C.tp_pages_readable(C.mach_vm_address_t(addr), C.mach_vm_size_t(n), C.mach_vm_size_t(pageSize)) == 1
}

func (machReadProbe) Read(addr uintptr, dst []byte) bool {
	return machCopy(addr, dst)
}

// machRegionProbe answers from the task's region table.
type machRegionProbe struct{}

func (machRegionProbe) IsReadable(addr uintptr, n int) bool {
	if !validRange(addr, n) {
		return false
	}
	return C.tp_region_readable(C.mach_vm_address_t(addr), C.mach_vm_size_t(n)) == 1
}

func (machRegionProbe) Read(addr uintptr, dst []byte) bool {
	return machCopy(addr, dst)
}

func machCopy(addr uintptr, dst []byte) bool {
	if !validRange(addr, len(dst)) {
		return false
	}
	return C.tp_copy(C.mach_vm_address_t(addr), unsafe.Pointer(&dst[0]), C.mach_vm_size_t(len(dst))) == 1
}
