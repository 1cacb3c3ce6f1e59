// Package testutil provides testing helpers shared across threadprobe packages.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context cancelled after timeout or when the test
// ends, whichever comes first.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
