//go:build darwin && cgo

package thread

/*
#include <dispatch/dispatch.h>
#include <mach/mach.h>
#include <mach/mach_error.h>
#include <pthread.h>
#include <pthread/qos.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	int64_t user_us;
	int64_t system_us;
	int     cpu_usage;
	int     run_state;
	int     flags;
} tp_basic_info;

static kern_return_t tp_thread_basic_info(thread_act_t port, tp_basic_info *out) {
	thread_basic_info_data_t info;
	mach_msg_type_number_t count = THREAD_BASIC_INFO_COUNT;
	kern_return_t kr = thread_info(port, THREAD_BASIC_INFO, (thread_info_t)&info, &count);
	if (kr != KERN_SUCCESS) {
		return kr;
	}
	out->user_us = (int64_t)info.user_time.seconds * 1000000 + info.user_time.microseconds;
	out->system_us = (int64_t)info.system_time.seconds * 1000000 + info.system_time.microseconds;
	out->cpu_usage = info.cpu_usage;
	out->run_state = info.run_state;
	out->flags = info.flags;
	return KERN_SUCCESS;
}

static kern_return_t tp_thread_identifier_info(thread_act_t port, uint64_t *tid, uint64_t *handle, uintptr_t *qaddr) {
	thread_identifier_info_data_t info;
	mach_msg_type_number_t count = THREAD_IDENTIFIER_INFO_COUNT;
	kern_return_t kr = thread_info(port, THREAD_IDENTIFIER_INFO, (thread_info_t)&info, &count);
	if (kr != KERN_SUCCESS) {
		return kr;
	}
	*tid = info.thread_id;
	*handle = info.thread_handle;
	*qaddr = (uintptr_t)info.dispatch_qaddr;
	return KERN_SUCCESS;
}

static kern_return_t tp_task_threads(thread_act_array_t *list, mach_msg_type_number_t *count) {
	return task_threads(mach_task_self(), list, count);
}

static thread_act_t tp_thread_at(thread_act_array_t list, unsigned int i) {
	return list[i];
}

static void tp_free_threads(thread_act_array_t list, mach_msg_type_number_t count) {
	vm_deallocate(mach_task_self(), (vm_address_t)list, sizeof(thread_act_t) * count);
}

static kern_return_t tp_port_release(mach_port_t port) {
	return mach_port_deallocate(mach_task_self(), port);
}

static uintptr_t tp_pthread_from_port(thread_act_t port) {
	return (uintptr_t)pthread_from_mach_thread_np(port);
}

static int tp_pthread_name(uintptr_t pt, char *buf, size_t len) {
	return pthread_getname_np((pthread_t)pt, buf, len);
}

static int tp_pthread_priority(uintptr_t pt, int *priority) {
	int policy = 0;
	struct sched_param param;
	int rc = pthread_getschedparam((pthread_t)pt, &policy, &param);
	if (rc == 0) {
		*priority = param.sched_priority;
	}
	return rc;
}

static int tp_pthread_qos(uintptr_t pt, unsigned int *cls, int *rel) {
	qos_class_t qos = QOS_CLASS_UNSPECIFIED;
	int relative = 0;
	int rc = pthread_get_qos_class_np((pthread_t)pt, &qos, &relative);
	if (rc == 0) {
		*cls = (unsigned int)qos;
		*rel = relative;
	}
	return rc;
}

static void tp_pthread_stack(uintptr_t pt, uintptr_t *base, uintptr_t *size) {
	*base = (uintptr_t)pthread_get_stackaddr_np((pthread_t)pt);
	*size = (uintptr_t)pthread_get_stacksize_np((pthread_t)pt);
}

static uintptr_t tp_queue_label(uintptr_t queue) {
	return (uintptr_t)dispatch_queue_get_label((dispatch_queue_t)queue);
}
*/
import "C"

import (
	"fmt"
	"time"
)

const suspendSupported = true

// thUsageScale is TH_USAGE_SCALE, the full scale of cpu_usage.
const thUsageScale = 1000

// thFlagsIdle is TH_FLAGS_IDLE.
const thFlagsIdle = 0x2

type machKernel struct{}

func newKernel() kernel {
	return machKernel{}
}

func (machKernel) self() (threadRef, error) {
	port := C.mach_thread_self()
	if port == C.MACH_PORT_NULL {
		return threadRef{}, &kernError{op: "mach_thread_self", msg: "null port"}
	}
	return threadRef{id: NativeID(port), token: int(port)}, nil
}

func (machKernel) list() ([]threadRef, func(), error) {
	var (
		list  C.thread_act_array_t
		count C.mach_msg_type_number_t
	)
	if kr := C.tp_task_threads(&list, &count); kr != C.KERN_SUCCESS {
		return nil, nil, machError("task_threads", kr)
	}

	refs := make([]threadRef, 0, int(count))
	for i := 0; i < int(count); i++ {
		port := C.tp_thread_at(list, C.uint(i))
		refs = append(refs, threadRef{id: NativeID(port), token: int(port)})
	}
	done := func() { C.tp_free_threads(list, count) }
	return refs, done, nil
}

func (machKernel) release(ref threadRef) error {
	if ref.token < 0 {
		return nil
	}
	if kr := C.tp_port_release(C.mach_port_t(ref.token)); kr != C.KERN_SUCCESS {
		return machError("mach_port_deallocate", kr)
	}
	return nil
}

func (machKernel) basicInfo(ref threadRef) (basicInfo, error) {
	var info C.tp_basic_info
	if kr := C.tp_thread_basic_info(C.thread_act_t(ref.id), &info); kr != C.KERN_SUCCESS {
		return basicInfo{}, machError("thread_info", kr)
	}
	return basicInfo{
		userTime:   time.Duration(info.user_us) * time.Microsecond,
		systemTime: time.Duration(info.system_us) * time.Microsecond,
		usage:      float64(info.cpu_usage) / thUsageScale,
		runState:   runStateFromMach(int(info.run_state)),
		idle:       info.flags&thFlagsIdle != 0,
	}, nil
}

func runStateFromMach(state int) RunState {
	switch state {
	case C.TH_STATE_RUNNING:
		return RunStateRunning
	case C.TH_STATE_STOPPED:
		return RunStateStopped
	case C.TH_STATE_WAITING:
		return RunStateWaiting
	case C.TH_STATE_UNINTERRUPTIBLE:
		return RunStateUninterruptible
	case C.TH_STATE_HALTED:
		return RunStateHalted
	default:
		return RunStateUndefined
	}
}

func (machKernel) identifierInfo(ref threadRef) (identifierInfo, error) {
	var (
		tid    C.uint64_t
		handle C.uint64_t
		qaddr  C.uintptr_t
	)
	if kr := C.tp_thread_identifier_info(C.thread_act_t(ref.id), &tid, &handle, &qaddr); kr != C.KERN_SUCCESS {
		return identifierInfo{}, machError("thread_info", kr)
	}
	return identifierInfo{threadID: uint64(tid), threadHandle: uint64(handle), dispatchQAddr: uintptr(qaddr)}, nil
}

func (machKernel) queueLabelAddr(queue uintptr) uintptr {
	return uintptr(C.tp_queue_label(C.uintptr_t(queue)))
}

func (machKernel) resolve(ref threadRef) (runtimeHandle, error) {
	pt := C.tp_pthread_from_port(C.thread_act_t(ref.id))
	if pt == 0 {
		return 0, &kernError{op: "pthread_from_mach_thread_np", msg: "no pthread for port"}
	}
	return runtimeHandle(pt), nil
}

func (machKernel) name(rt runtimeHandle, _ threadRef) (string, error) {
	var buf [128]C.char
	if rc := C.tp_pthread_name(C.uintptr_t(rt), &buf[0], C.size_t(len(buf))); rc != 0 {
		return "", &kernError{op: "pthread_getname_np", code: int(rc)}
	}
	return C.GoString(&buf[0]), nil
}

func (machKernel) priority(rt runtimeHandle, _ threadRef) (int, error) {
	var p C.int
	if rc := C.tp_pthread_priority(C.uintptr_t(rt), &p); rc != 0 {
		return 0, &kernError{op: "pthread_getschedparam", code: int(rc)}
	}
	return int(p), nil
}

func (machKernel) qos(rt runtimeHandle, _ threadRef) (QoS, error) {
	var (
		cls C.uint
		rel C.int
	)
	if rc := C.tp_pthread_qos(C.uintptr_t(rt), &cls, &rel); rc != 0 {
		return QoS{}, &kernError{op: "pthread_get_qos_class_np", code: int(rc)}
	}
	return QoS{Class: QoSClass(cls), RelativePriority: int(rel)}, nil
}

func (machKernel) stackBounds(rt runtimeHandle, _ threadRef) (StackBounds, error) {
	var base, size C.uintptr_t
	C.tp_pthread_stack(C.uintptr_t(rt), &base, &size)
	if base == 0 || size == 0 || size > base {
		return StackBounds{}, &kernError{op: "pthread_get_stackaddr_np", msg: "no stack"}
	}
	return StackBounds{High: uintptr(base), Low: uintptr(base - size)}, nil
}

func (machKernel) suspend(ref threadRef, _ suspendLimits) error {
	if kr := C.thread_suspend(C.thread_act_t(ref.id)); kr != C.KERN_SUCCESS {
		return machError("thread_suspend", kr)
	}
	return nil
}

func (machKernel) resume(ref threadRef) error {
	if kr := C.thread_resume(C.thread_act_t(ref.id)); kr != C.KERN_SUCCESS {
		return machError("thread_resume", kr)
	}
	return nil
}

// machError turns a kern_return_t into an error. MACH_SEND_INVALID_DEST and
// KERN_TERMINATED mean the port no longer names a live thread.
func machError(op string, kr C.kern_return_t) error {
	if kr == C.MACH_SEND_INVALID_DEST || kr == C.KERN_TERMINATED {
		return fmt.Errorf("%s: %w", op, ErrThreadGone)
	}
	msg := C.GoString(C.mach_error_string(kr))
	return &kernError{op: op, code: int(kr), msg: msg}
}
