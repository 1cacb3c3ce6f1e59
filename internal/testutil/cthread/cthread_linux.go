//go:build linux && cgo

package cthread

/*
#include <stdlib.h>
#include "cthread.h"
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Spinner is a C thread that increments a counter until it is stopped.
type Spinner struct {
	s   *C.tp_spinner
	tid int
}

// StartSpinner starts a spinner named name. It returns once the thread is
// running and its TID is known.
func StartSpinner(name string) (*Spinner, error) {
	s := (*C.tp_spinner)(C.calloc(1, C.sizeof_tp_spinner))
	if s == nil {
		return nil, fmt.Errorf("failed to allocate spinner")
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	if rc := C.tp_spinner_start(s, cname); rc != 0 {
		C.free(unsafe.Pointer(s))
		return nil, fmt.Errorf("pthread_create: %w", unix.Errno(rc))
	}
	return &Spinner{s: s, tid: int(C.tp_spinner_tid(s))}, nil
}

// TID returns the kernel thread id.
func (s *Spinner) TID() int {
	return s.tid
}

// Count returns the current counter value, or zero once stopped.
func (s *Spinner) Count() uint64 {
	if s.s == nil {
		return 0
	}
	return uint64(C.tp_spinner_count(s.s))
}

// Stop ends the thread and joins it, so the thread has exited when Stop
// returns. Later calls do nothing.
func (s *Spinner) Stop() {
	if s.s == nil {
		return
	}
	C.tp_spinner_stop(s.s)
	C.free(unsafe.Pointer(s.s))
	s.s = nil
}

// Run calls fn on a new C thread with the given stack size in bytes and waits
// for it to return. A zero size uses the C library default. fn runs on that
// thread for its whole duration.
func Run(stackSize int, fn func()) error {
	h := cgo.NewHandle(fn)
	defer h.Delete()
	if rc := C.tp_run(C.size_t(stackSize), C.uintptr_t(h)); rc != 0 {
		return fmt.Errorf("run on C thread: %w", unix.Errno(rc))
	}
	return nil
}

//export threadprobeRunCallback
func threadprobeRunCallback(h C.uintptr_t) {
	cgo.Handle(h).Value().(func())()
}
