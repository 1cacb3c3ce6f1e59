package thread

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentIsBorrowed(t *testing.T) {
	k := newFakeKernel(7, 7, 8)
	e := newEnumerator(k, zerolog.Nop())

	h := e.Current()
	assert.False(t, h.Owned())
	assert.Equal(t, NativeID(7), h.NativeID())
	assert.Equal(t, uint64(7), h.TID())

	// The reference obtained for the lookup is already released.
	assert.Equal(t, 0, k.outstanding())

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.Equal(t, 1, k.maxReleases())
}

func TestAllOwnsEveryEntry(t *testing.T) {
	k := newFakeKernel(1, 1, 2, 3, 4)
	e := newEnumerator(k, zerolog.Nop())

	handles := e.All()
	require.Len(t, handles, 4)
	for _, h := range handles {
		assert.True(t, h.Owned())
	}
	assert.Equal(t, 1, k.listDone, "backing array released after wrapping")
	assert.Equal(t, 4, k.outstanding())

	CloseAll(handles)
	CloseAll(handles)
	assert.Equal(t, 0, k.outstanding())
	assert.Equal(t, 1, k.maxReleases(), "each reference released exactly once")
}

func TestAllExcludingCurrent(t *testing.T) {
	k := newFakeKernel(2, 1, 2, 3)
	e := newEnumerator(k, zerolog.Nop())

	all := e.All()
	others, current := e.AllExcludingCurrent()
	defer CloseAll(all)
	defer CloseAll(others)

	assert.Len(t, others, len(all)-1)
	assert.False(t, current.Owned())
	assert.Equal(t, NativeID(2), current.NativeID())
	for _, h := range others {
		assert.False(t, h.Equal(current))
		assert.True(t, h.Owned())
	}

	// Only the wrapped handles still hold references: the enumerated entry for
	// the caller and the lookup reference are gone.
	assert.Equal(t, len(all)+len(others), k.outstanding())
}

func TestAllExcludingCurrentWithoutSelfInList(t *testing.T) {
	k := newFakeKernel(9, 1, 2)
	e := newEnumerator(k, zerolog.Nop())

	others, current := e.AllExcludingCurrent()
	defer CloseAll(others)

	assert.Len(t, others, 2)
	assert.Equal(t, NativeID(9), current.NativeID())
}

func TestEnumerationFailureIsEmpty(t *testing.T) {
	k := newFakeKernel(1, 1, 2)
	k.listErr = errors.New("task_threads failed")
	e := newEnumerator(k, zerolog.Nop())

	all := e.All()
	assert.NotNil(t, all)
	assert.Empty(t, all)

	others, current := e.AllExcludingCurrent()
	assert.NotNil(t, others)
	assert.Empty(t, others)
	assert.Equal(t, NativeID(1), current.NativeID())
	assert.Equal(t, 0, k.outstanding())
}

func TestEnumeratorOptions(t *testing.T) {
	k := newFakeKernel(1)
	e := newEnumerator(k, zerolog.Nop(), WithSuspendLimits(0, 0))
	assert.Equal(t, defaultSuspendLimits, e.limits)

	e = newEnumerator(k, zerolog.Nop(), WithSuspendLimits(5, 7), WithProbe(nil))
	assert.Equal(t, suspendLimits{timeout: 5, budget: 7}, e.limits)
	assert.NotNil(t, e.probe)
}
