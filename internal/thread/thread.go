// Package thread enumerates the OS threads of the current process and reads a
// point-in-time snapshot of each one: CPU time, run state, scheduling class,
// stack bounds and names.
//
// Every query degrades to a documented default when the thread is gone or the
// kernel refuses; no accessor returns an error. Values are independent
// instants, not a consistent snapshot across threads or across calls.
package thread

import (
	"errors"
	"time"
)

// NativeID is the opaque kernel identifier of a thread: a Mach thread port on
// Darwin, the kernel TID on Linux. Zero is the null identifier.
type NativeID uint64

// ErrThreadGone is reported by the kernel backends when the thread no longer
// exists.
var ErrThreadGone = errors.New("thread no longer exists")

// RunState is the scheduler state of a thread.
type RunState int

const (
	RunStateUndefined RunState = iota
	RunStateRunning
	RunStateStopped
	RunStateWaiting
	RunStateUninterruptible
	RunStateHalted
)

func (s RunState) String() string {
	switch s {
	case RunStateRunning:
		return "running"
	case RunStateStopped:
		return "stopped"
	case RunStateWaiting:
		return "waiting"
	case RunStateUninterruptible:
		return "uninterruptible"
	case RunStateHalted:
		return "halted"
	default:
		return "undefined"
	}
}

// CPUInfo is a snapshot of kernel accounting for one thread. The zero value
// means the information was unavailable.
type CPUInfo struct {
	UserTime   time.Duration
	SystemTime time.Duration
	// UsagePercent is CPU usage as a fraction of one core, 0 to 1.
	UsagePercent float64
	RunState     RunState
	Idle         bool
}

// QoSClass is a quality-of-service class. Values match the Darwin
// qos_class_t constants.
type QoSClass uint32

const (
	QoSUnspecified     QoSClass = 0x00
	QoSBackground      QoSClass = 0x09
	QoSUtility         QoSClass = 0x11
	QoSDefault         QoSClass = 0x15
	QoSUserInitiated   QoSClass = 0x19
	QoSUserInteractive QoSClass = 0x21
)

func (c QoSClass) String() string {
	switch c {
	case QoSBackground:
		return "background"
	case QoSUtility:
		return "utility"
	case QoSDefault:
		return "default"
	case QoSUserInitiated:
		return "user-initiated"
	case QoSUserInteractive:
		return "user-interactive"
	default:
		return "unspecified"
	}
}

// QoS is a quality-of-service class with its relative priority, in [-15, 0].
// The zero value means unknown.
type QoS struct {
	Class            QoSClass
	RelativePriority int
}

// StackBounds are the addresses of a thread's stack. High is the base the
// stack grows down from. The zero value means unknown.
type StackBounds struct {
	High uintptr
	Low  uintptr
}

// Known reports whether the bounds were resolved.
func (b StackBounds) Known() bool {
	return b.High != 0 && b.High > b.Low
}

// Size returns the stack size in bytes, zero when unknown.
func (b StackBounds) Size() uintptr {
	if !b.Known() {
		return 0
	}
	return b.High - b.Low
}

// Contains reports whether addr lies inside the stack.
func (b StackBounds) Contains(addr uintptr) bool {
	return b.Known() && addr >= b.Low && addr < b.High
}
