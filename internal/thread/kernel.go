package thread

import (
	"errors"
	"fmt"
	"time"
)

// noToken marks a reference that is not held open, so there is nothing to
// release.
const noToken = -1

// threadRef names a thread to the kernel backend. token is the backend's
// handle on its kernel reference (a Mach port right, a Linux task dirfd), or
// noToken for a borrowed reference.
type threadRef struct {
	id    NativeID
	token int
}

func (r threadRef) borrowed() threadRef {
	return threadRef{id: r.id, token: noToken}
}

// runtimeHandle is the threading runtime's handle for a thread: pthread_t on
// Darwin, the verified TID on Linux.
type runtimeHandle uintptr

type basicInfo struct {
	userTime   time.Duration
	systemTime time.Duration
	usage      float64
	runState   RunState
	idle       bool
}

type identifierInfo struct {
	threadID uint64
	// threadHandle is the runtime's handle as seen by the kernel; zero while
	// the thread is not fully set up.
	threadHandle uint64
	// dispatchQAddr is the address of the slot holding the thread's current
	// dispatch queue pointer. It comes from the kernel and is untrusted.
	dispatchQAddr uintptr
}

type suspendLimits struct {
	// timeout bounds how long Suspend waits for the target to stop.
	timeout time.Duration
	// budget bounds how long a thread may stay suspended before it resumes
	// itself. Zero disables the watchdog where the backend supports it.
	budget time.Duration
}

var defaultSuspendLimits = suspendLimits{
	timeout: 10 * time.Millisecond,
	budget:  50 * time.Millisecond,
}

// kernel is the per-platform backend. Every method is a single kernel or
// runtime query with no retries.
type kernel interface {
	// self obtains a reference on the calling thread.
	self() (threadRef, error)
	// list obtains a reference on every thread of the process. done releases
	// the backing array and must be called once the entries are wrapped.
	list() (refs []threadRef, done func(), err error)
	release(ref threadRef) error

	basicInfo(ref threadRef) (basicInfo, error)
	identifierInfo(ref threadRef) (identifierInfo, error)
	// queueLabelAddr returns the label address of a validated dispatch queue,
	// zero when there is none.
	queueLabelAddr(queue uintptr) uintptr

	resolve(ref threadRef) (runtimeHandle, error)
	name(rt runtimeHandle, ref threadRef) (string, error)
	priority(rt runtimeHandle, ref threadRef) (int, error)
	qos(rt runtimeHandle, ref threadRef) (QoS, error)
	stackBounds(rt runtimeHandle, ref threadRef) (StackBounds, error)

	suspend(ref threadRef, limits suspendLimits) error
	resume(ref threadRef) error
}

// kernError is a failed kernel or runtime call.
type kernError struct {
	op   string
	code int
	msg  string
}

func (e *kernError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s failed: code %d", e.op, e.code)
	}
	return fmt.Sprintf("%s failed: %s (code %d)", e.op, e.msg, e.code)
}

var errUnsupported = errors.New("not supported on this platform")

// CanSuspend reports whether this build can suspend other threads.
func CanSuspend() bool { return suspendSupported }

// QueueLabelsEnabled reports whether DispatchQueueLabel reads labels in this
// build. Production builds leave it off.
func QueueLabelsEnabled() bool { return queueLabelsEnabled }
