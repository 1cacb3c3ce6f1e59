package profiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/threadprobe/internal/thread"
)

// Transaction is the application span a profile is attached to.
type Transaction struct {
	ID      string
	Name    string
	TraceID string
	Start   time.Time
	End     time.Time // Zero means still open.
	// ActiveThreadID is the thread the transaction ran on, if known.
	ActiveThreadID uint64
}

// ItemHeader is the header line of an envelope item.
type ItemHeader struct {
	Type        string `json:"type"`
	ContentType string `json:"content_type"`
	Length      int    `json:"length"`
}

// EnvelopeItem is a profile ready to be sent alongside its transaction.
type EnvelopeItem struct {
	Header  ItemHeader
	Payload []byte
}

// WriteTo writes the item in envelope framing: the JSON header, a newline, the
// payload and a trailing newline.
func (i *EnvelopeItem) WriteTo(w io.Writer) (int64, error) {
	header, err := json.Marshal(i.Header)
	if err != nil {
		return 0, fmt.Errorf("failed to encode item header: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(header) + len(i.Payload) + 2)
	buf.Write(header)
	buf.WriteByte('\n')
	buf.Write(i.Payload)
	buf.WriteByte('\n')
	return buf.WriteTo(w)
}

type profilePayload struct {
	ProfileID   string          `json:"profile_id"`
	Platform    string          `json:"platform"`
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Release     string          `json:"release,omitempty"`
	Environment string          `json:"environment,omitempty"`
	Runtime     runtimePayload  `json:"runtime"`
	Device      DeviceInfo      `json:"device"`
	Transaction txPayload       `json:"transaction"`
	DurationNS  uint64          `json:"duration_ns,string"`
	Profile     sampledProfile  `json:"sampled_profile"`
	Stats       *profileCounter `json:"stats,omitempty"`
}

type runtimePayload struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type txPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TraceID        string `json:"trace_id"`
	ActiveThreadID uint64 `json:"active_thread_id,string"`
}

type sampledProfile struct {
	Samples        []samplePayload          `json:"samples"`
	Stacks         [][]int                  `json:"stacks"`
	Frames         []framePayload           `json:"frames"`
	ThreadMetadata map[string]threadPayload `json:"thread_metadata"`
	QueueMetadata  map[string]queuePayload  `json:"queue_metadata,omitempty"`
}

type samplePayload struct {
	ElapsedNS    uint64      `json:"elapsed_since_start_ns,string"`
	StackID      int         `json:"stack_id"`
	ThreadID     uint64      `json:"thread_id,string"`
	QueueAddress string      `json:"queue_address,omitempty"`
	CPU          *cpuPayload `json:"cpu,omitempty"`
}

type cpuPayload struct {
	UserNS   int64   `json:"user_ns"`
	SystemNS int64   `json:"system_ns"`
	Usage    float64 `json:"usage"`
	State    string  `json:"state"`
}

type framePayload struct {
	InstructionAddr string `json:"instruction_addr"`
}

type threadPayload struct {
	Name     string `json:"name,omitempty"`
	Priority int    `json:"priority"`
	QoS      string `json:"qos,omitempty"`
	// RelativePriority is only meaningful alongside a QoS class.
	RelativePriority int `json:"qos_relative_priority,omitempty"`
}

type queuePayload struct {
	Label string `json:"label"`
}

type profileCounter struct {
	Samples int `json:"samples"`
	Threads int `json:"threads"`
}

// BuildEnvelopeItemForTransaction packages the samples recorded during tx. It
// copies the window out under a short lock and does the encoding afterwards,
// so it never waits on a sampling pass. It returns false when no sample falls
// inside the transaction.
func (p *Profiler) BuildEnvelopeItemForTransaction(tx Transaction) (*EnvelopeItem, bool) {
	end := tx.End
	if end.IsZero() {
		end = time.Now()
	}
	w := p.rec.snapshot(tx.Start, end)
	if len(w.samples) == 0 {
		return nil, false
	}

	payload := p.buildPayload(tx, end, w)
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error().Err(err).Str("transaction", tx.ID).Msg("Failed to encode profile")
		return nil, false
	}
	return &EnvelopeItem{
		Header: ItemHeader{
			Type:        "profile",
			ContentType: "application/json",
			Length:      len(data),
		},
		Payload: data,
	}, true
}

func (p *Profiler) buildPayload(tx Transaction, end time.Time, w window) profilePayload {
	origin := tx.Start
	if origin.IsZero() || origin.Before(w.started) {
		origin = w.started
	}

	prof := sampledProfile{
		Samples:        make([]samplePayload, 0, len(w.samples)),
		Stacks:         [][]int{{}},
		Frames:         []framePayload{},
		ThreadMetadata: make(map[string]threadPayload),
	}

	// Stacks and frames are renumbered so the payload only carries what its
	// samples reference.
	stackIDs := map[int]int{emptyStack: emptyStack}
	frameIDs := map[uintptr]int{}
	for _, s := range w.samples {
		id, ok := stackIDs[s.StackID]
		if !ok {
			pcs := addrs(w.stacks[s.StackID], w.frames)
			stack := make([]int, len(pcs))
			for i, pc := range pcs {
				fi, seen := frameIDs[pc]
				if !seen {
					fi = len(prof.Frames)
					frameIDs[pc] = fi
					prof.Frames = append(prof.Frames, framePayload{InstructionAddr: "0x" + strconv.FormatUint(uint64(pc), 16)})
				}
				stack[i] = fi
			}
			id = len(prof.Stacks)
			prof.Stacks = append(prof.Stacks, stack)
			stackIDs[s.StackID] = id
		}

		sp := samplePayload{
			StackID:  id,
			ThreadID: s.ThreadID,
		}
		if elapsed := s.Timestamp.Sub(origin); elapsed > 0 {
			sp.ElapsedNS = uint64(elapsed)
		}
		if s.CPU != (thread.CPUInfo{}) {
			sp.CPU = &cpuPayload{
				UserNS:   s.CPU.UserTime.Nanoseconds(),
				SystemNS: s.CPU.SystemTime.Nanoseconds(),
				Usage:    s.CPU.UsagePercent,
				State:    s.CPU.RunState.String(),
			}
		}
		if s.QueueLabel != "" {
			addr := queueAddress(s.QueueLabel)
			sp.QueueAddress = addr
			if prof.QueueMetadata == nil {
				prof.QueueMetadata = make(map[string]queuePayload)
			}
			prof.QueueMetadata[addr] = queuePayload{Label: s.QueueLabel}
		}
		prof.Samples = append(prof.Samples, sp)

		key := strconv.FormatUint(s.ThreadID, 10)
		if _, ok := prof.ThreadMetadata[key]; !ok {
			meta := w.threads[s.ThreadID]
			tp := threadPayload{Name: meta.Name, Priority: meta.Priority}
			if meta.QoS != (thread.QoS{}) {
				tp.QoS = meta.QoS.Class.String()
				tp.RelativePriority = meta.QoS.RelativePriority
			}
			prof.ThreadMetadata[key] = tp
		}
	}

	var duration uint64
	if d := end.Sub(origin); d > 0 {
		duration = uint64(d)
	}

	return profilePayload{
		ProfileID:   uuid.NewString(),
		Platform:    "go",
		Version:     "1",
		Timestamp:   origin.UTC(),
		Release:     p.cfg.Release,
		Environment: p.cfg.Environment,
		Runtime:     runtimePayload{Name: "go", Version: runtime.Version()},
		Device:      p.device(),
		Transaction: txPayload{
			ID:             tx.ID,
			Name:           tx.Name,
			TraceID:        tx.TraceID,
			ActiveThreadID: tx.ActiveThreadID,
		},
		DurationNS: duration,
		Profile:    prof,
		Stats: &profileCounter{
			Samples: len(prof.Samples),
			Threads: len(prof.ThreadMetadata),
		},
	}
}

// queueAddress derives a stable key for a queue from its label. Labels are
// the only identity a queue exposes safely.
func queueAddress(label string) string {
	return "0x" + strconv.FormatUint(xxh3.HashString(label), 16)
}
