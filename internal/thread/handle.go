package thread

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

type resolveState uint8

const (
	unresolved resolveState = iota
	resolved
	failed
)

// Handle refers to one OS thread. An owned handle holds a kernel reference that
// Close releases exactly once; a borrowed handle (from Current) holds none.
//
// A Handle may be used from any goroutine. Accessors never return errors; each
// one documents the value it falls back to.
type Handle struct {
	ref    threadRef
	owned  bool
	k      kernel
	probe  memsafe.Probe
	limits suspendLimits
	logger zerolog.Logger

	released *atomic.Bool

	mu    sync.Mutex
	state resolveState
	rt    runtimeHandle
}

// leakedRef is what the cleanup of an unreachable, unclosed handle needs.
type leakedRef struct {
	k        kernel
	ref      threadRef
	released *atomic.Bool
}

func releaseLeaked(l leakedRef) {
	if l.released.CompareAndSwap(false, true) {
		_ = l.k.release(l.ref)
	}
}

func (e *Enumerator) wrap(ref threadRef, owned bool) *Handle {
	if !owned {
		ref = ref.borrowed()
	}
	h := &Handle{
		ref:      ref,
		owned:    owned,
		k:        e.k,
		probe:    e.probe,
		limits:   e.limits,
		logger:   e.logger.With().Uint64("thread", uint64(ref.id)).Logger(),
		released: new(atomic.Bool),
	}
	if owned {
		runtime.AddCleanup(h, releaseLeaked, leakedRef{k: e.k, ref: ref, released: h.released})
	}
	return h
}

// NativeID returns the kernel identifier of the thread.
func (h *Handle) NativeID() NativeID {
	return h.ref.id
}

// TID returns a numeric thread id derived from the native id.
func (h *Handle) TID() uint64 {
	return uint64(h.ref.id)
}

// Owned reports whether the handle holds a kernel reference of its own.
func (h *Handle) Owned() bool {
	return h.owned
}

// Equal reports whether both handles name the same thread.
func (h *Handle) Equal(other *Handle) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.ref.id == other.ref.id
}

// Close releases the kernel reference of an owned handle. It is safe to call
// more than once; the reference is released on the first call only.
func (h *Handle) Close() error {
	if !h.owned || !h.released.CompareAndSwap(false, true) {
		return nil
	}
	return h.k.release(h.ref)
}

// WarmRuntimeHandle resolves and caches the runtime handle. Resolution is
// attempted at most once per handle; a failure is cached too.
func (h *Handle) WarmRuntimeHandle() bool {
	_, ok := h.runtimeHandle()
	return ok
}

func (h *Handle) runtimeHandle() (runtimeHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case resolved:
		return h.rt, true
	case failed:
		return 0, false
	}

	if h.ref.id == 0 {
		h.state = failed
		return 0, false
	}
	rt, err := h.k.resolve(h.ref)
	if err != nil {
		h.state = failed
		h.logFailure("resolve runtime handle", err)
		return 0, false
	}
	h.rt = rt
	h.state = resolved
	return rt, true
}

// Name returns the thread name, "" when unavailable.
func (h *Handle) Name() string {
	rt, ok := h.runtimeHandle()
	if !ok {
		return ""
	}
	name, err := h.k.name(rt, h.ref)
	if err != nil {
		h.logFailure("read name", err)
		return ""
	}
	return name
}

// Priority returns the scheduling priority, -1 when unavailable.
func (h *Handle) Priority() int {
	rt, ok := h.runtimeHandle()
	if !ok {
		return -1
	}
	p, err := h.k.priority(rt, h.ref)
	if err != nil {
		h.logFailure("read priority", err)
		return -1
	}
	return p
}

// QoS returns the quality-of-service class, the zero value when unavailable.
func (h *Handle) QoS() QoS {
	rt, ok := h.runtimeHandle()
	if !ok {
		return QoS{}
	}
	q, err := h.k.qos(rt, h.ref)
	if err != nil {
		h.logFailure("read qos", err)
		return QoS{}
	}
	return q
}

// StackBounds returns the stack addresses, the zero value when unavailable.
func (h *Handle) StackBounds() StackBounds {
	rt, ok := h.runtimeHandle()
	if !ok {
		return StackBounds{}
	}
	b, err := h.k.stackBounds(rt, h.ref)
	if err != nil {
		h.logFailure("read stack bounds", err)
		return StackBounds{}
	}
	if !b.Known() {
		return StackBounds{}
	}
	return b
}

// CPUInfo returns kernel accounting for the thread, the zero value when the
// thread is gone or the query fails.
func (h *Handle) CPUInfo() CPUInfo {
	if h.ref.id == 0 {
		return CPUInfo{}
	}
	info, err := h.k.basicInfo(h.ref)
	if err != nil {
		h.logFailure("read cpu info", err)
		return CPUInfo{}
	}
	return CPUInfo{
		UserTime:     info.userTime,
		SystemTime:   info.systemTime,
		UsagePercent: info.usage,
		RunState:     info.runState,
		Idle:         info.idle,
	}
}

// IsIdle reports whether the thread is not running. It issues its own kernel
// query and answers true when the thread is gone or the query fails.
func (h *Handle) IsIdle() bool {
	if h.ref.id == 0 {
		return true
	}
	info, err := h.k.basicInfo(h.ref)
	if err != nil {
		h.logFailure("read idle state", err)
		return true
	}
	return info.idle || info.runState != RunStateRunning
}

// Suspend stops the thread. The runtime handle is resolved first, so no
// runtime lookup can happen while the thread is stopped. It returns false for
// the null id or when the kernel refuses.
//
// While a thread is suspended the caller must not allocate, log or take locks
// the suspended thread might hold. It must not block or sleep either: a
// suspended Go thread may own a P or a scheduler lock, and parking the caller
// can stall the Go runtime until the suspension budget runs out.
func (h *Handle) Suspend() bool {
	if h.ref.id == 0 {
		return false
	}
	h.WarmRuntimeHandle()
	if err := h.k.suspend(h.ref, h.limits); err != nil {
		h.logFailure("suspend", err)
		return false
	}
	return true
}

// Resume restarts a suspended thread. It returns false for the null id or when
// the kernel refuses.
func (h *Handle) Resume() bool {
	if h.ref.id == 0 {
		return false
	}
	if err := h.k.resume(h.ref); err != nil {
		h.logFailure("resume", err)
		return false
	}
	return true
}

// WithSuspended runs fn while the thread is suspended and resumes it on every
// exit path. It returns false without calling fn when the thread could not be
// suspended.
func (h *Handle) WithSuspended(fn func()) bool {
	if !h.Suspend() {
		return false
	}
	defer h.Resume()
	fn()
	return true
}

func (h *Handle) logFailure(op string, err error) {
	if errors.Is(err, ErrThreadGone) {
		h.logger.Debug().Str("op", op).Msg("Thread gone")
		return
	}
	if errors.Is(err, errUnsupported) {
		return
	}
	h.logger.Warn().Err(err).Str("op", op).Msg("Thread query failed")
}
