package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackTableIntern(t *testing.T) {
	st := newStackTable()

	assert.Equal(t, emptyStack, st.intern(nil))
	assert.Equal(t, emptyStack, st.intern([]uintptr{}))

	a := st.intern([]uintptr{0x10, 0x20, 0x30})
	b := st.intern([]uintptr{0x10, 0x20})
	c := st.intern([]uintptr{0x10, 0x20, 0x30})

	assert.NotEqual(t, emptyStack, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c, "identical stacks share an id")
	assert.Len(t, st.stacks, 3)
	assert.Len(t, st.frames, 3, "frames are shared between stacks")
	assert.Equal(t, []uintptr{0x10, 0x20, 0x30}, addrs(st.stacks[a], st.frames))
	assert.Equal(t, []uintptr{0x10, 0x20}, addrs(st.stacks[b], st.frames))
}

func TestStackTableOrderMatters(t *testing.T) {
	st := newStackTable()
	a := st.intern([]uintptr{0x1, 0x2})
	b := st.intern([]uintptr{0x2, 0x1})
	assert.NotEqual(t, a, b)
}

func obsAt(ts time.Time, tid uint64, pcs ...uintptr) observation {
	return observation{
		sample: Sample{Timestamp: ts, ThreadID: tid},
		meta:   ThreadMetadata{Name: "worker", Priority: 31},
		pcs:    pcs,
	}
}

func TestRecorderWindow(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	r := newRecorder(100)
	r.reset(base)

	dropped := r.add([]observation{
		obsAt(base.Add(1*time.Millisecond), 1, 0x10),
		obsAt(base.Add(2*time.Millisecond), 2, 0x20),
		obsAt(base.Add(3*time.Millisecond), 1, 0x10),
		obsAt(base.Add(4*time.Millisecond), 2),
	})
	require.Zero(t, dropped)
	assert.Equal(t, 4, r.count())

	w := r.snapshot(base.Add(2*time.Millisecond), base.Add(3*time.Millisecond))
	require.Len(t, w.samples, 2)
	assert.Equal(t, uint64(2), w.samples[0].ThreadID)
	assert.Equal(t, uint64(1), w.samples[1].ThreadID)
	assert.Equal(t, base, w.started)

	assert.Empty(t, r.snapshot(base.Add(time.Hour), base.Add(2*time.Hour)).samples)
}

func TestRecorderLimit(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	r := newRecorder(2)
	r.reset(base)

	dropped := r.add([]observation{
		obsAt(base, 1),
		obsAt(base, 2),
		obsAt(base, 3),
	})
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 2, r.count())

	r.reset(base)
	assert.Zero(t, r.count())
}
