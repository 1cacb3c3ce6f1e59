package runtime

import (
	"context"
	"os"
	"path/filepath"
	goruntime "runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/threadprobe/internal/thread"
)

func writeStatus(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadCapabilityBitmask(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    uint64
		wantErr bool
	}{
		{"present", "Name:\tthreadprobe\nCapEff:\t0000000000880000\n", 0x880000, false},
		{"missing", "Name:\tthreadprobe\n", 0, true},
		{"malformed", "CapEff:\n", 0, true},
		{"not hex", "CapEff:\tzz\n", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readCapabilityBitmask(writeStatus(t, tt.body), "CapEff")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEffectiveCapabilities(t *testing.T) {
	// Bits 19 (ptrace) and 23 (nice).
	path := writeStatus(t, "CapEff:\t0000000000880000\n")

	caps, err := effectiveCapabilities(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"CAP_SYS_PTRACE", "CAP_SYS_NICE"}, caps)

	path = writeStatus(t, "CapEff:\t0000000000000000\n")
	caps, err = effectiveCapabilities(path)
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestDetect(t *testing.T) {
	d := NewDetector(zerolog.Nop(), thread.NewEnumerator(zerolog.Nop()))
	d.statusPath = writeStatus(t, "CapEff:\t0000000000080000\n")

	r := d.Detect(context.Background())
	assert.Equal(t, goruntime.GOOS, r.OS)
	assert.Equal(t, goruntime.GOARCH, r.Arch)
	assert.Equal(t, cgoEnabled, r.CGO)
	assert.Equal(t, thread.CanSuspend(), r.Suspend)
	assert.Len(t, r.Mechanisms, 2)

	if goruntime.GOOS == "linux" {
		assert.Positive(t, r.Threads)
		assert.Equal(t, []string{"CAP_SYS_PTRACE"}, r.Capabilities)
		available := 0
		for _, m := range r.Mechanisms {
			if m.Available {
				available++
			}
		}
		assert.Positive(t, available)
	}
}
