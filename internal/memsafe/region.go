package memsafe

// region is one entry of the virtual memory map, [start, end).
type region struct {
	start    uintptr
	end      uintptr
	readable bool
}

// covered reports whether [addr, end) lies entirely inside contiguous readable
// regions. regions must be sorted by start address, which is the order the
// kernel reports them in.
func covered(regions []region, addr, end uintptr) bool {
	cursor := addr
	for _, r := range regions {
		if r.end <= cursor {
			continue
		}
		if r.start > cursor || !r.readable {
			return false
		}
		cursor = r.end
		if cursor >= end {
			return true
		}
	}
	return false
}
