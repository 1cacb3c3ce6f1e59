package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/threadprobe/internal/cli/helpers"
	cfgpkg "github.com/coral-mesh/threadprobe/internal/config"
	"github.com/coral-mesh/threadprobe/internal/constants"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewConfigCmd(helpers.NewEnv())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestShowYAML(t *testing.T) {
	out, err := run(t, "show")
	require.NoError(t, err)

	var cfg cfgpkg.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, *cfgpkg.Default(), cfg)
}

func TestShowRejectsFormat(t *testing.T) {
	_, err := run(t, "show", "-o", "toml")
	assert.Error(t, err)
}

func TestInitValidateAndPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(constants.ConfigDirEnv, dir)
	path := filepath.Join(dir, constants.ConfigFile)

	out, err := run(t, "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)

	_, err = run(t, "init")
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = run(t, "init")
	assert.Error(t, err, "existing file needs --force")
	_, err = run(t, "init", "--force")
	assert.NoError(t, err)

	out, err = run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestValidateReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiler:\n  max_threads: -1\nmemory_probe:\n  mechanism: guess\n"), 0o600))

	_, err := run(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profiler.max_threads")
	assert.Contains(t, err.Error(), "memory_probe.mechanism")

	_, err = run(t, "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
