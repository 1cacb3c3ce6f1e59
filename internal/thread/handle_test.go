package thread

import (
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessorsReadLiveThread(t *testing.T) {
	k := newFakeKernel(1, 1, 2)
	e := newEnumerator(k, zerolog.Nop())
	handles := e.All()
	defer CloseAll(handles)
	h := handles[1]

	assert.Equal(t, "worker", h.Name())
	assert.Equal(t, 31, h.Priority())
	assert.Equal(t, QoS{Class: QoSDefault}, h.QoS())
	assert.Equal(t, StackBounds{High: 0x20000, Low: 0x10000}, h.StackBounds())

	info := h.CPUInfo()
	assert.Equal(t, RunStateRunning, info.RunState)
	assert.InDelta(t, 0.5, info.UsagePercent, 1e-9)
	assert.NotZero(t, info.UserTime)
	assert.False(t, h.IsIdle())
}

func TestRuntimeHandleResolvedAtMostOnce(t *testing.T) {
	tests := []struct {
		name      string
		noRuntime bool
	}{
		{name: "resolution succeeds"},
		{name: "resolution fails", noRuntime: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newFakeKernel(1, 1, 2)
			k.threads[2].noRuntime = tt.noRuntime
			e := newEnumerator(k, zerolog.Nop())
			handles := e.All()
			defer CloseAll(handles)
			h := handles[1]

			for range 3 {
				h.WarmRuntimeHandle()
				_ = h.Name()
				_ = h.Priority()
				_ = h.QoS()
				_ = h.StackBounds()
				_ = h.Suspend() && h.Resume()
			}
			assert.Equal(t, 1, k.resolveCalls[2])
			if tt.noRuntime {
				assert.Equal(t, "", h.Name())
				assert.Equal(t, -1, h.Priority())
			}
		})
	}
}

func TestGoneThreadDefaults(t *testing.T) {
	k := newFakeKernel(1, 1, 2)
	e := newEnumerator(k, zerolog.Nop())
	handles := e.All()
	defer CloseAll(handles)
	h := handles[1]

	k.threads[2].gone = true

	assert.Equal(t, CPUInfo{}, h.CPUInfo())
	assert.True(t, h.IsIdle())
	assert.Equal(t, "", h.Name())
	assert.Equal(t, -1, h.Priority())
	assert.Equal(t, QoS{}, h.QoS())
	assert.Equal(t, StackBounds{}, h.StackBounds())
	assert.False(t, h.StackBounds().Known())
	assert.Equal(t, "", h.DispatchQueueLabel())
	assert.False(t, h.Suspend())
	assert.False(t, h.Resume())
}

func TestNullHandle(t *testing.T) {
	k := newFakeKernel(1)
	e := newEnumerator(k, zerolog.Nop())
	h := e.wrap(threadRef{token: noToken}, false)

	assert.False(t, h.Suspend())
	assert.False(t, h.Resume())
	assert.True(t, h.IsIdle())
	assert.Equal(t, CPUInfo{}, h.CPUInfo())
	assert.Equal(t, -1, h.Priority())
	assert.Empty(t, k.calls)
}

func TestIsIdle(t *testing.T) {
	tests := []struct {
		name  string
		state RunState
		idle  bool
		want  bool
	}{
		{"running", RunStateRunning, false, false},
		{"running with idle flag", RunStateRunning, true, true},
		{"waiting", RunStateWaiting, false, true},
		{"stopped", RunStateStopped, false, true},
		{"undefined", RunStateUndefined, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newFakeKernel(1, 1, 2)
			k.threads[2].info.runState = tt.state
			k.threads[2].info.idle = tt.idle
			e := newEnumerator(k, zerolog.Nop())
			handles := e.All()
			defer CloseAll(handles)

			assert.Equal(t, tt.want, handles[1].IsIdle())
		})
	}
}

func TestSuspendResolvesRuntimeHandleFirst(t *testing.T) {
	k := newFakeKernel(1, 1, 2)
	e := newEnumerator(k, zerolog.Nop())
	handles := e.All()
	defer CloseAll(handles)

	require.True(t, handles[1].Suspend())
	require.True(t, handles[1].Resume())
	assert.Equal(t, []string{"resolve", "suspend", "resume"}, k.calls)
}

func TestWithSuspendedResumesOnPanic(t *testing.T) {
	k := newFakeKernel(1, 1, 2)
	e := newEnumerator(k, zerolog.Nop())
	handles := e.All()
	defer CloseAll(handles)
	h := handles[1]

	ran := false
	assert.True(t, h.WithSuspended(func() { ran = true }))
	assert.True(t, ran)
	assert.False(t, k.suspended[2])

	assert.Panics(t, func() {
		h.WithSuspended(func() { panic("unwinder bug") })
	})
	assert.False(t, k.suspended[2], "thread resumed after panic")

	k.threads[2].gone = true
	assert.False(t, h.WithSuspended(func() { t.Fatal("must not run") }))
}

func TestEqual(t *testing.T) {
	k := newFakeKernel(1, 1, 2)
	e := newEnumerator(k, zerolog.Nop())
	a := e.All()
	b := e.All()
	defer CloseAll(a)
	defer CloseAll(b)

	assert.True(t, a[0].Equal(b[0]))
	assert.False(t, a[0].Equal(b[1]))
	assert.False(t, a[0].Equal(nil))
}

// labelMemory is a tiny address space for the queue label chain.
type labelMemory map[uintptr]byte

func (m labelMemory) IsReadable(addr uintptr, n int) bool {
	if n <= 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if _, ok := m[addr+uintptr(i)]; !ok {
			return false
		}
	}
	return true
}

func (m labelMemory) Read(addr uintptr, dst []byte) bool {
	if !m.IsReadable(addr, len(dst)) {
		return false
	}
	for i := range dst {
		dst[i] = m[addr+uintptr(i)]
	}
	return true
}

func (m labelMemory) put(addr uintptr, data []byte) {
	for i, b := range data {
		m[addr+uintptr(i)] = b
	}
}

func TestDispatchQueueLabel(t *testing.T) {
	if !queueLabelsEnabled {
		t.Skip("queue labels are disabled in production builds")
	}
	if ptrSize != 8 {
		t.Skip("test writes 64-bit pointers")
	}

	const (
		slot  = uintptr(0x1000)
		queue = uintptr(0x2000)
		label = uintptr(0x3000)
	)
	mem := labelMemory{}
	var word [8]byte
	binary.NativeEndian.PutUint64(word[:], uint64(queue))
	mem.put(slot, word[:])
	mem.put(queue, make([]byte, queueObjectSize))
	labelBytes := make([]byte, 64)
	copy(labelBytes, "com.example.io")
	mem.put(label, labelBytes)

	tests := []struct {
		name  string
		qaddr uintptr
		setup func(k *fakeKernel)
		want  string
	}{
		{
			name:  "valid chain",
			qaddr: slot,
			setup: func(k *fakeKernel) { k.labels[queue] = label },
			want:  "com.example.io",
		},
		{
			name:  "no queue",
			qaddr: 0,
			setup: func(k *fakeKernel) { k.labels[queue] = label },
		},
		{
			name:  "unreadable slot",
			qaddr: 0x9000,
			setup: func(k *fakeKernel) { k.labels[queue] = label },
		},
		{
			name:  "thread not set up",
			qaddr: slot,
			setup: func(k *fakeKernel) {
				k.labels[queue] = label
				k.threads[2].ident.threadHandle = 0
			},
		},
		{
			name:  "queue without label",
			qaddr: slot,
			setup: func(k *fakeKernel) {},
		},
		{
			name:  "label not mapped",
			qaddr: slot,
			setup: func(k *fakeKernel) { k.labels[queue] = 0x7000 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := newFakeKernel(1, 1, 2)
			k.threads[2].ident = identifierInfo{threadID: 2, threadHandle: 0x2, dispatchQAddr: tt.qaddr}
			tt.setup(k)
			e := newEnumerator(k, zerolog.Nop(), WithProbe(mem))
			handles := e.All()
			defer CloseAll(handles)

			assert.Equal(t, tt.want, handles[1].DispatchQueueLabel())
		})
	}
}

func TestValueTypes(t *testing.T) {
	assert.Equal(t, "running", RunStateRunning.String())
	assert.Equal(t, "undefined", RunState(42).String())
	assert.Equal(t, "undefined", RunState(0).String())
	assert.Equal(t, "user-interactive", QoSUserInteractive.String())
	assert.Equal(t, "unspecified", QoSClass(0).String())

	assert.False(t, StackBounds{}.Known())
	assert.False(t, StackBounds{High: 0x10, Low: 0x10}.Known())
	b := StackBounds{High: 0x2000, Low: 0x1000}
	assert.True(t, b.Known())
	assert.Equal(t, uintptr(0x1000), b.Size())
	assert.True(t, b.Contains(0x1800))
	assert.False(t, b.Contains(0x2000))
}
