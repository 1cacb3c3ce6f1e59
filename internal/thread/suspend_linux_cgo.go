//go:build linux && cgo

package thread

/*
#define _GNU_SOURCE
#include <errno.h>
#include <pthread.h>
#include <signal.h>
#include <stdint.h>
#include <string.h>
#include <sys/syscall.h>
#include <time.h>
#include <unistd.h>

// A suspended thread parks inside the handler of a real-time signal, polling
// its slot until it is told to resume or its budget runs out. Everything in
// the handler is async-signal-safe.

enum { TP_FREE, TP_REQUESTED, TP_SUSPENDED, TP_RESUMING, TP_EXPIRED };

#define TP_SLOTS 64
#define TP_NAP_NS 20000
#define TP_HANDOFF_NS 10000000LL

typedef struct {
	int     tid;
	int     state;
	int64_t budget_ns;
} tp_slot;

static tp_slot tp_slots[TP_SLOTS];
static pthread_once_t tp_once = PTHREAD_ONCE_INIT;
static int tp_signo;
static int tp_install_err;

static int64_t tp_now_ns(void) {
	struct timespec ts;
	clock_gettime(CLOCK_MONOTONIC, &ts);
	return (int64_t)ts.tv_sec * 1000000000LL + ts.tv_nsec;
}

static void tp_nap(void) {
	struct timespec nap = {0, TP_NAP_NS};
	nanosleep(&nap, NULL);
}

static void tp_free(tp_slot *slot) {
	__atomic_store_n(&slot->state, TP_FREE, __ATOMIC_RELEASE);
	__atomic_store_n(&slot->tid, 0, __ATOMIC_RELEASE);
}

static tp_slot *tp_find(int tid) {
	for (int i = 0; i < TP_SLOTS; i++) {
		if (__atomic_load_n(&tp_slots[i].tid, __ATOMIC_ACQUIRE) == tid) {
			return &tp_slots[i];
		}
	}
	return NULL;
}

static void tp_handler(int sig, siginfo_t *info, void *uctx) {
	(void)sig; (void)info; (void)uctx;
	int saved = errno;
	tp_slot *slot = tp_find((int)syscall(SYS_gettid));
	int expected = TP_REQUESTED;
	if (slot == NULL || !__atomic_compare_exchange_n(&slot->state, &expected, TP_SUSPENDED,
			0, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
		errno = saved;
		return;
	}

	int64_t budget = __atomic_load_n(&slot->budget_ns, __ATOMIC_ACQUIRE);
	int64_t deadline = tp_now_ns() + budget;
	for (;;) {
		int state = __atomic_load_n(&slot->state, __ATOMIC_ACQUIRE);
		if (state == TP_RESUMING) {
			tp_free(slot);
			break;
		}
		if (budget > 0 && tp_now_ns() >= deadline) {
			expected = TP_SUSPENDED;
			if (__atomic_compare_exchange_n(&slot->state, &expected, TP_EXPIRED,
					0, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
				break;
			}
			continue;
		}
		tp_nap();
	}
	errno = saved;
}

static void tp_install(void) {
	struct sigaction sa;
	memset(&sa, 0, sizeof(sa));
	sa.sa_sigaction = tp_handler;
	sa.sa_flags = SA_SIGINFO | SA_RESTART | SA_ONSTACK;
	sigfillset(&sa.sa_mask);
	tp_signo = SIGRTMIN + 4;
	if (sigaction(tp_signo, &sa, NULL) != 0) {
		tp_install_err = errno;
	}
}

static tp_slot *tp_claim(int tid, int64_t budget_ns, int64_t deadline) {
	for (;;) {
		tp_slot *slot = tp_find(tid);
		if (slot == NULL) {
			break;
		}
		// A slot left behind by an expired suspension can be reused; the
		// handler no longer touches it.
		int expected = TP_EXPIRED;
		if (__atomic_compare_exchange_n(&slot->state, &expected, TP_REQUESTED,
				0, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
			__atomic_store_n(&slot->budget_ns, budget_ns, __ATOMIC_RELEASE);
			return slot;
		}
		// A resumed handler is still handing its slot back.
		if ((expected == TP_RESUMING || expected == TP_FREE) && tp_now_ns() < deadline) {
			tp_nap();
			continue;
		}
		return NULL;
	}
	for (int i = 0; i < TP_SLOTS; i++) {
		int expected = 0;
		if (__atomic_compare_exchange_n(&tp_slots[i].tid, &expected, tid,
				0, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
			__atomic_store_n(&tp_slots[i].budget_ns, budget_ns, __ATOMIC_RELEASE);
			__atomic_store_n(&tp_slots[i].state, TP_REQUESTED, __ATOMIC_RELEASE);
			return &tp_slots[i];
		}
	}
	return NULL;
}

static int tp_suspend(int pid, int tid, int64_t timeout_ns, int64_t budget_ns) {
	pthread_once(&tp_once, tp_install);
	if (tp_install_err != 0) {
		return tp_install_err;
	}
	if (tid == (int)syscall(SYS_gettid)) {
		return EDEADLK;
	}

	int64_t deadline = tp_now_ns() + timeout_ns;
	tp_slot *slot = tp_claim(tid, budget_ns, deadline);
	if (slot == NULL) {
		return EBUSY;
	}
	if (syscall(SYS_tgkill, pid, tid, tp_signo) != 0) {
		int err = errno;
		tp_free(slot);
		return err;
	}

	for (;;) {
		int state = __atomic_load_n(&slot->state, __ATOMIC_ACQUIRE);
		if (state == TP_SUSPENDED) {
			return 0;
		}
		if (state == TP_EXPIRED) {
			tp_free(slot);
			return ETIMEDOUT;
		}
		if (tp_now_ns() >= deadline) {
			int expected = TP_REQUESTED;
			if (__atomic_compare_exchange_n(&slot->state, &expected, TP_FREE,
					0, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
				__atomic_store_n(&slot->tid, 0, __ATOMIC_RELEASE);
				return ETIMEDOUT;
			}
			continue;
		}
		tp_nap();
	}
}

static int tp_resume(int tid) {
	tp_slot *slot = tp_find(tid);
	if (slot == NULL) {
		return EINVAL;
	}
	int expected = TP_SUSPENDED;
	if (__atomic_compare_exchange_n(&slot->state, &expected, TP_RESUMING,
			0, __ATOMIC_ACQ_REL, __ATOMIC_ACQUIRE)) {
		// Wait for the handler to free the slot so the next suspension of
		// this thread can claim it. The thread is already on its way out of
		// the handler, so running out of time here is still a resume.
		int64_t deadline = tp_now_ns() + TP_HANDOFF_NS;
		while (__atomic_load_n(&slot->tid, __ATOMIC_ACQUIRE) == tid && tp_now_ns() < deadline) {
			tp_nap();
		}
		return 0;
	}
	if (expected == TP_EXPIRED) {
		tp_free(slot);
		return ETIMEDOUT;
	}
	return EINVAL;
}
*/
import "C"

import "golang.org/x/sys/unix"

const suspendSupported = true

// suspendTask parks tid inside a signal handler. The thread resumes on its own
// once limits.budget has elapsed, so a lost Resume cannot stall the process.
func suspendTask(pid, tid int, limits suspendLimits) error {
	rc := C.tp_suspend(C.int(pid), C.int(tid), C.int64_t(limits.timeout.Nanoseconds()), C.int64_t(limits.budget.Nanoseconds()))
	if rc != 0 {
		return errnoError("suspend", unix.Errno(rc))
	}
	return nil
}

func resumeTask(tid int) error {
	if rc := C.tp_resume(C.int(tid)); rc != 0 {
		return errnoError("resume", unix.Errno(rc))
	}
	return nil
}
