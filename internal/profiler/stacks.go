package profiler

import (
	"encoding/binary"
	"slices"

	"github.com/zeebo/xxh3"
)

// emptyStack is the id of the stack with no frames. It always exists so that
// samples taken without an unwinder still reference a valid stack.
const emptyStack = 0

// stackTable interns stacks and frames. Stacks are deduplicated by the xxh3
// hash of their frame addresses and stored as frame indices, innermost first.
// Interned stacks are never modified, so they may be read after the owner's
// lock is dropped.
type stackTable struct {
	frames   []uintptr
	frameIdx map[uintptr]int
	stacks   [][]int
	byHash   map[uint64][]int
	scratch  []byte
}

func newStackTable() *stackTable {
	return &stackTable{
		frameIdx: make(map[uintptr]int),
		stacks:   [][]int{{}},
		byHash:   make(map[uint64][]int),
	}
}

// intern returns the id of the stack with the given frame addresses.
func (t *stackTable) intern(pcs []uintptr) int {
	if len(pcs) == 0 {
		return emptyStack
	}

	h := t.hash(pcs)
	for _, id := range t.byHash[h] {
		if t.equal(t.stacks[id], pcs) {
			return id
		}
	}

	stack := make([]int, len(pcs))
	for i, pc := range pcs {
		idx, ok := t.frameIdx[pc]
		if !ok {
			idx = len(t.frames)
			t.frames = append(t.frames, pc)
			t.frameIdx[pc] = idx
		}
		stack[i] = idx
	}
	id := len(t.stacks)
	t.stacks = append(t.stacks, stack)
	t.byHash[h] = append(t.byHash[h], id)
	return id
}

func (t *stackTable) hash(pcs []uintptr) uint64 {
	t.scratch = slices.Grow(t.scratch[:0], len(pcs)*8)
	for _, pc := range pcs {
		t.scratch = binary.LittleEndian.AppendUint64(t.scratch, uint64(pc))
	}
	return xxh3.Hash(t.scratch)
}

func (t *stackTable) equal(stack []int, pcs []uintptr) bool {
	if len(stack) != len(pcs) {
		return false
	}
	for i, idx := range stack {
		if t.frames[idx] != pcs[i] {
			return false
		}
	}
	return true
}

// addrs returns the frame addresses of a stack stored as frame indices.
func addrs(stack []int, frames []uintptr) []uintptr {
	out := make([]uintptr, len(stack))
	for i, idx := range stack {
		out[i] = frames[idx]
	}
	return out
}
