//go:build linux

package profile

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// nameThread sets the calling thread's comm name. The kernel truncates it to
// 15 bytes.
func nameThread(name string) {
	b, err := unix.BytePtrFromString(name)
	if err != nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(b)), 0, 0, 0)
}
