// Package runtime reports what this build and host allow threadprobe to do.
package runtime

import (
	"context"
	goruntime "runtime"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/coral-mesh/threadprobe/internal/errors"
	"github.com/coral-mesh/threadprobe/internal/memsafe"
	"github.com/coral-mesh/threadprobe/internal/thread"
)

// MechanismStatus tells whether a memory probe mechanism can be used.
type MechanismStatus struct {
	Name      memsafe.Mechanism `json:"name" header:"MECHANISM"`
	Available bool              `json:"available" header:"AVAILABLE"`
	Error     string            `json:"error,omitempty" header:"ERROR"`
}

// Report describes the host and the features compiled into this build.
type Report struct {
	OS           string            `json:"os"`
	Arch         string            `json:"arch"`
	Platform     string            `json:"platform,omitempty"`
	Kernel       string            `json:"kernel,omitempty"`
	GoVersion    string            `json:"go_version"`
	CPUs         int               `json:"cpus"`
	CGO          bool              `json:"cgo"`
	Suspend      bool              `json:"suspend"`
	QueueLabels  bool              `json:"queue_labels"`
	Threads      int               `json:"threads"`
	Mechanisms   []MechanismStatus `json:"mechanisms"`
	Capabilities []string          `json:"capabilities,omitempty"`
}

// Detector builds Reports.
type Detector struct {
	logger     zerolog.Logger
	enum       *thread.Enumerator
	statusPath string
}

// NewDetector creates a detector counting threads through enum.
func NewDetector(logger zerolog.Logger, enum *thread.Enumerator) *Detector {
	return &Detector{
		logger:     logger.With().Str("component", "runtime_detector").Logger(),
		enum:       enum,
		statusPath: "/proc/self/status",
	}
}

// Detect gathers the report. Host lookups that fail leave their fields empty.
func (d *Detector) Detect(ctx context.Context) *Report {
	r := &Report{
		OS:          goruntime.GOOS,
		Arch:        goruntime.GOARCH,
		GoVersion:   goruntime.Version(),
		CPUs:        goruntime.NumCPU(),
		CGO:         cgoEnabled,
		Suspend:     thread.CanSuspend(),
		QueueLabels: thread.QueueLabelsEnabled(),
	}

	if platform, _, version, err := host.PlatformInformationWithContext(ctx); err == nil {
		r.Platform = platform + " " + version
	} else {
		d.logger.Debug().Err(err).Msg("Platform lookup failed")
	}
	if kernel, err := host.KernelVersionWithContext(ctx); err == nil {
		r.Kernel = kernel
	}

	threads := d.enum.All()
	r.Threads = len(threads)
	errors.CloseEach(d.logger, threads, "Failed to release thread handle")

	for _, m := range []memsafe.Mechanism{memsafe.MechanismSyscall, memsafe.MechanismRegion} {
		st := MechanismStatus{Name: m, Available: true}
		if _, err := memsafe.New(m); err != nil {
			st.Available = false
			st.Error = err.Error()
		}
		r.Mechanisms = append(r.Mechanisms, st)
	}

	if r.OS == "linux" {
		caps, err := effectiveCapabilities(d.statusPath)
		if err != nil {
			d.logger.Debug().Err(err).Msg("Capability lookup failed")
		}
		r.Capabilities = caps
	}

	return r
}
