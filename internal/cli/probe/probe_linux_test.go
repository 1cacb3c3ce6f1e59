//go:build linux

package probe

import (
	"bytes"
	"encoding/json"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	"github.com/coral-mesh/threadprobe/internal/memsafe"
)

func TestSelfTestPasses(t *testing.T) {
	results, err := Run([]memsafe.Mechanism{memsafe.MechanismRegion}, selfTest(), true)
	require.NoError(t, err)
	require.Len(t, results, len(selfTest()))
	for _, r := range results {
		assert.True(t, r.Pass, "%s: readable=%v expected=%s", r.Check, r.Readable, r.Expected)
	}
}

func TestRunUngraded(t *testing.T) {
	buf := make([]byte, 32)
	checks := []check{
		{name: "address", addr: uintptr(unsafe.Pointer(&buf[0])), n: len(buf)},
		{name: "address", addr: 0, n: 8},
	}
	results, err := Run([]memsafe.Mechanism{memsafe.MechanismRegion}, checks, false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Readable)
	assert.False(t, results[1].Readable)
	assert.Equal(t, "0x0", results[1].Address)
	for _, r := range results {
		assert.True(t, r.Pass)
		assert.Empty(t, r.Expected)
	}
}

func TestSelectMechanisms(t *testing.T) {
	env := helpers.NewEnv()

	got, err := selectMechanisms("", env)
	require.NoError(t, err)
	assert.Equal(t, []memsafe.Mechanism{memsafe.MechanismSyscall}, got)

	got, err = selectMechanisms("all", env)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = selectMechanisms("guess", env)
	assert.Error(t, err)
}

func TestProbeCommand(t *testing.T) {
	cmd := NewProbeCmd(helpers.NewEnv())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--mechanism", "region", "-o", "json", "0x0"})
	require.NoError(t, cmd.Execute())

	var results []Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.False(t, results[0].Readable)
}

func TestProbeCommandRejectsAddress(t *testing.T) {
	cmd := NewProbeCmd(helpers.NewEnv())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"nowhere"})
	assert.Error(t, cmd.Execute())
}
