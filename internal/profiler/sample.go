package profiler

import (
	"time"

	"github.com/coral-mesh/threadprobe/internal/thread"
)

// Sample is one thread snapshot taken during a sampling pass.
type Sample struct {
	Timestamp  time.Time
	ThreadID   uint64
	StackID    int
	QueueLabel string
	CPU        thread.CPUInfo
}

// ThreadMetadata describes a thread that appears in samples. The most recent
// values seen win.
type ThreadMetadata struct {
	Name     string
	Priority int
	QoS      thread.QoS
}

// observation is what a sampling pass produces for one thread, before it is
// interned into the recorder.
type observation struct {
	sample Sample
	meta   ThreadMetadata
	pcs    []uintptr
}
