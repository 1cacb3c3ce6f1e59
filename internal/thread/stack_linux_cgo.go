//go:build linux && cgo

package thread

/*
#define _GNU_SOURCE
#include <pthread.h>
#include <stdint.h>

static int tp_current_stack(uintptr_t *low, uintptr_t *size) {
	pthread_attr_t attr;
	int rc = pthread_getattr_np(pthread_self(), &attr);
	if (rc != 0) {
		return rc;
	}
	void *addr = NULL;
	size_t sz = 0;
	rc = pthread_attr_getstack(&attr, &addr, &sz);
	pthread_attr_destroy(&attr);
	if (rc != 0) {
		return rc;
	}
	*low = (uintptr_t)addr;
	*size = (uintptr_t)sz;
	return 0;
}

*/
import "C"

import "golang.org/x/sys/unix"

// currentStackBounds reads the calling thread's stack from its pthread
// attributes.
func currentStackBounds() (StackBounds, error) {
	var low, size C.uintptr_t
	if rc := C.tp_current_stack(&low, &size); rc != 0 {
		return StackBounds{}, errnoError("pthread_getattr_np", unix.Errno(rc))
	}
	return StackBounds{High: uintptr(low) + uintptr(size), Low: uintptr(low)}, nil
}

