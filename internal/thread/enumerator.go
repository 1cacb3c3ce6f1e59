package thread

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

// Enumerator produces handles for the threads of the current process.
type Enumerator struct {
	k      kernel
	probe  memsafe.Probe
	limits suspendLimits
	logger zerolog.Logger
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithProbe sets the memory probe used to validate runtime pointers.
func WithProbe(p memsafe.Probe) Option {
	return func(e *Enumerator) {
		if p != nil {
			e.probe = p
		}
	}
}

// WithSuspendLimits bounds how long Suspend waits for a thread to stop and how
// long a thread may stay suspended. Non-positive values keep the defaults.
func WithSuspendLimits(timeout, budget time.Duration) Option {
	return func(e *Enumerator) {
		if timeout > 0 {
			e.limits.timeout = timeout
		}
		if budget > 0 {
			e.limits.budget = budget
		}
	}
}

// NewEnumerator returns an enumerator backed by the platform kernel.
func NewEnumerator(logger zerolog.Logger, opts ...Option) *Enumerator {
	return newEnumerator(newKernel(), logger, opts...)
}

func newEnumerator(k kernel, logger zerolog.Logger, opts ...Option) *Enumerator {
	e := &Enumerator{
		k:      k,
		probe:  memsafe.Default(),
		limits: defaultSuspendLimits,
		logger: logger.With().Str("component", "thread").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Current returns a borrowed handle on the calling thread. The reference the
// kernel hands out is released before Current returns.
//
// Goroutines migrate between threads; pin the goroutine with
// runtime.LockOSThread for the handle to keep describing the caller.
func (e *Enumerator) Current() *Handle {
	ref, err := e.k.self()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to get current thread")
		return e.wrap(threadRef{token: noToken}, false)
	}
	if err := e.k.release(ref); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to release current thread reference")
	}
	return e.wrap(ref, false)
}

// All returns an owned handle for every thread of the process, or an empty
// slice when enumeration fails. The caller must Close every handle.
func (e *Enumerator) All() []*Handle {
	refs, done, err := e.k.list()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to enumerate threads")
		return []*Handle{}
	}
	defer done()

	handles := make([]*Handle, 0, len(refs))
	for _, ref := range refs {
		handles = append(handles, e.wrap(ref, true))
	}
	return handles
}

// AllExcludingCurrent returns owned handles for every thread except the caller,
// plus a borrowed handle on the caller. The enumerated reference on the calling
// thread is released right away instead of being wrapped.
func (e *Enumerator) AllExcludingCurrent() ([]*Handle, *Handle) {
	current := e.Current()

	refs, done, err := e.k.list()
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to enumerate threads")
		return []*Handle{}, current
	}
	defer done()

	handles := make([]*Handle, 0, len(refs))
	for _, ref := range refs {
		if ref.id == current.ref.id {
			if err := e.k.release(ref); err != nil {
				e.logger.Warn().Err(err).Msg("Failed to release current thread reference")
			}
			continue
		}
		handles = append(handles, e.wrap(ref, true))
	}
	return handles, current
}

// CloseAll closes every handle in hs.
func CloseAll(hs []*Handle) {
	for _, h := range hs {
		if h != nil {
			_ = h.Close()
		}
	}
}

var defaultEnumerator = sync.OnceValue(func() *Enumerator {
	return NewEnumerator(zerolog.Nop())
})

// Default returns the process wide enumerator. It logs nothing.
func Default() *Enumerator {
	return defaultEnumerator()
}

// Current returns a borrowed handle on the calling thread.
func Current() *Handle {
	return defaultEnumerator().Current()
}

// All returns owned handles for every thread of the process.
func All() []*Handle {
	return defaultEnumerator().All()
}

// AllExcludingCurrent returns owned handles for every other thread plus a
// borrowed handle on the caller.
func AllExcludingCurrent() ([]*Handle, *Handle) {
	return defaultEnumerator().AllExcludingCurrent()
}
