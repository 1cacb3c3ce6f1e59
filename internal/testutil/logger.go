package testutil

import (
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a debug-level logger that writes through t.Log, so
// output only shows for failing or verbose tests.
func NewTestLogger(t *testing.T) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: &testLogWriter{t: t}, NoColor: true}).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
