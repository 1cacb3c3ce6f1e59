package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelease(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = origVersion, origCommit })

	Version, GitCommit = "1.4.0", "unknown"
	assert.Equal(t, "threadprobe@1.4.0", Release())

	GitCommit = "abc1234"
	assert.Equal(t, "threadprobe@1.4.0+abc1234", Release())
}
