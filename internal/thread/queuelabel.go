package thread

import (
	"unsafe"

	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

const (
	// queueObjectSize is the number of bytes of a dispatch queue object that
	// must be readable before the runtime is asked for its label.
	queueObjectSize = 64
	maxQueueLabel   = 256

	ptrSize = int(unsafe.Sizeof(uintptr(0)))
)

// DispatchQueueLabel returns the label of the dispatch queue the thread is
// currently serving, "" when there is none or it cannot be read safely. It is
// always "" in production builds.
func (h *Handle) DispatchQueueLabel() string {
	if !queueLabelsEnabled || h.ref.id == 0 {
		return ""
	}
	info, err := h.k.identifierInfo(h.ref)
	if err != nil {
		h.logFailure("read identifier info", err)
		return ""
	}
	if info.threadHandle == 0 {
		return ""
	}

	label, ok := memsafe.At(h.probe, info.dispatchQAddr).
		Check(ptrSize).
		Deref().
		Check(queueObjectSize).
		Then(h.k.queueLabelAddr).
		CString(maxQueueLabel)
	if !ok {
		return ""
	}
	return label
}
