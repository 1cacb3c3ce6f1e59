//go:build linux && cgo

package thread

import (
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/coral-mesh/threadprobe/internal/testutil/cthread"
)

// startSpinner starts a C thread that counts until the test ends. It never
// runs Go code, so suspending it cannot hold up the Go scheduler.
func startSpinner(t *testing.T, name string) *cthread.Spinner {
	t.Helper()
	s, err := cthread.StartSpinner(name)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func handleFor(t *testing.T, e *Enumerator, id NativeID) *Handle {
	t.Helper()
	all := e.All()
	t.Cleanup(func() { CloseAll(all) })
	for _, h := range all {
		if h.NativeID() == id {
			return h
		}
	}
	t.Fatalf("thread %d not enumerated", id)
	return nil
}

func settled(s *cthread.Spinner) bool {
	before := s.Count()
	time.Sleep(2 * time.Millisecond)
	return s.Count() == before
}

func TestSuspendResume(t *testing.T) {
	s := startSpinner(t, "tp-suspend")
	e := NewEnumerator(zerolog.Nop(), WithSuspendLimits(100*time.Millisecond, time.Second))
	h := handleFor(t, e, NativeID(s.TID()))

	require.Eventually(t, func() bool { return s.Count() > 0 }, time.Second, time.Millisecond)

	require.True(t, h.Suspend())
	assert.True(t, settled(s), "counter frozen while suspended")
	require.True(t, h.Resume())

	before := s.Count()
	assert.Eventually(t, func() bool { return s.Count() > before }, time.Second, time.Millisecond)

	// Resume without a matching Suspend is refused.
	assert.False(t, h.Resume())
}

func TestWithSuspendedReleasesThread(t *testing.T) {
	s := startSpinner(t, "tp-with")
	e := NewEnumerator(zerolog.Nop(), WithSuspendLimits(100*time.Millisecond, time.Second))
	h := handleFor(t, e, NativeID(s.TID()))

	var frozen bool
	ok := h.WithSuspended(func() {
		a := s.Count()
		for i := 0; i < 1_000_000; i++ {
			_ = i
		}
		frozen = s.Count() == a
	})
	require.True(t, ok)
	assert.True(t, frozen)

	before := s.Count()
	assert.Eventually(t, func() bool { return s.Count() > before }, time.Second, time.Millisecond)
}

func TestSuspendBudgetExpires(t *testing.T) {
	s := startSpinner(t, "tp-budget")
	e := NewEnumerator(zerolog.Nop(), WithSuspendLimits(100*time.Millisecond, 20*time.Millisecond))
	h := handleFor(t, e, NativeID(s.TID()))

	require.True(t, h.Suspend())

	// The watchdog resumes the thread without a Resume call.
	before := s.Count()
	assert.Eventually(t, func() bool { return s.Count() > before }, time.Second, time.Millisecond)
	assert.False(t, h.Resume(), "an expired suspension cannot be resumed")

	// The slot is reusable afterwards.
	require.True(t, h.Suspend())
	require.True(t, h.Resume())
}

func TestSuspendResumeBackToBack(t *testing.T) {
	s := startSpinner(t, "tp-repeat")
	e := NewEnumerator(zerolog.Nop(), WithSuspendLimits(100*time.Millisecond, time.Second))
	h := handleFor(t, e, NativeID(s.TID()))

	for i := 0; i < 50; i++ {
		require.True(t, h.Suspend(), "suspend %d", i)
		require.True(t, h.Resume(), "resume %d", i)
	}

	before := s.Count()
	assert.Eventually(t, func() bool { return s.Count() > before }, time.Second, time.Millisecond)
}

func TestLinuxStackBoundsMatchConfiguredSize(t *testing.T) {
	const stackSize = 1 << 20

	var b StackBounds
	require.NoError(t, cthread.Run(stackSize, func() {
		b = NewEnumerator(zerolog.Nop()).Current().StackBounds()
	}))
	require.True(t, b.Known())
	assert.Equal(t, uintptr(stackSize), b.Size())
	assert.Equal(t, b.High-b.Low, b.Size())
}

func TestLinuxStackBounds(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	b := NewEnumerator(zerolog.Nop()).Current().StackBounds()
	require.True(t, b.Known())
	assert.Greater(t, b.Size(), uintptr(0))

	// Other threads are located through their saved stack pointer, which is
	// only exposed while they are blocked.
	ready := make(chan NativeID)
	release := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		ready <- NativeID(unix.Gettid())
		<-release
	}()
	tid := <-ready
	defer close(release)

	e := NewEnumerator(zerolog.Nop())
	other := handleFor(t, e, tid)
	require.Eventually(t, func() bool { return other.IsIdle() }, time.Second, time.Millisecond)

	ob := other.StackBounds()
	if !ob.Known() {
		t.Skip("kernel does not expose the saved stack pointer")
	}
	assert.Greater(t, ob.Size(), uintptr(0))
}
