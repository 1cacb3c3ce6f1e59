package memsafe

import (
	"bytes"
	"encoding/binary"
	"unsafe"
)

const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// Chain follows a sequence of untrusted pointers one hop at a time. Each hop is
// validated through a Probe before anything is read, and the first invalid hop
// turns the whole chain unavailable; later hops become no-ops.
//
//	label, ok := memsafe.At(probe, slotAddr).Deref().Check(objSize).Addr()
type Chain struct {
	probe Probe
	addr  uintptr
	ok    bool
}

// At starts a chain at addr.
func At(p Probe, addr uintptr) Chain {
	if p == nil {
		p = defaultProbe
	}
	return Chain{probe: p, addr: addr, ok: addr != 0}
}

// Check requires n readable bytes at the current address.
func (c Chain) Check(n int) Chain {
	if !c.ok || !c.probe.IsReadable(c.addr, n) {
		return c.fail()
	}
	return c
}

// Offset moves the current address by d bytes.
func (c Chain) Offset(d uintptr) Chain {
	if !c.ok {
		return c
	}
	next := c.addr + d
	if next < c.addr {
		return c.fail()
	}
	c.addr = next
	return c
}

// Deref reads a pointer at the current address and moves to it. A nil target
// fails the chain.
func (c Chain) Deref() Chain {
	if !c.ok {
		return c
	}
	var word [8]byte
	if !c.probe.Read(c.addr, word[:ptrSize]) {
		return c.fail()
	}
	var next uintptr
	if ptrSize == 8 {
		next = uintptr(binary.NativeEndian.Uint64(word[:]))
	} else {
		next = uintptr(binary.NativeEndian.Uint32(word[:4]))
	}
	if next == 0 {
		return c.fail()
	}
	c.addr = next
	return c
}

// Then moves to the address returned by fn, for hops that go through a
// runtime call rather than a plain load. A zero result fails the chain.
func (c Chain) Then(fn func(addr uintptr) uintptr) Chain {
	if !c.ok {
		return c
	}
	next := fn(c.addr)
	if next == 0 {
		return c.fail()
	}
	c.addr = next
	return c
}

// Addr returns the current address and whether every hop so far was valid.
func (c Chain) Addr() (uintptr, bool) {
	return c.addr, c.ok
}

// OK reports whether every hop so far was valid.
func (c Chain) OK() bool {
	return c.ok
}

// CString reads a NUL terminated string of at most limit bytes at the current
// address. Reads never cross into a page that has not been validated, so a
// string ending right before an unmapped page is still returned. A string
// without a terminator within limit bytes is unavailable.
func (c Chain) CString(limit int) (string, bool) {
	if !c.ok || limit <= 0 {
		return "", false
	}

	var (
		out    []byte
		chunk  [64]byte
		cursor = c.addr
	)
	for len(out) < limit {
		n := len(chunk)
		if toPage := int(pageFloor(cursor) + pageSize - cursor); toPage < n {
			n = toPage
		}
		if left := limit - len(out); left < n {
			n = left
		}
		if !c.probe.Read(cursor, chunk[:n]) {
			return "", false
		}
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			out = append(out, chunk[:i]...)
			return string(out), true
		}
		out = append(out, chunk[:n]...)
		cursor += uintptr(n)
	}
	return "", false
}

func (c Chain) fail() Chain {
	c.ok = false
	return c
}
