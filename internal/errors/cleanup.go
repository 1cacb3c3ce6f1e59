// Package errors provides cleanup helpers for error paths.
package errors

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// DeferClose properly closes an io.Closer with logging.
// Use this in defer statements to avoid suppressing close errors.
func DeferClose(logger zerolog.Logger, closer io.Closer, msg string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Warn().Err(err).Msg(msg)
	}
}

// CloseEach closes every closer and logs failures. It is meant for batches of
// handles that must all be released even when one of them fails.
func CloseEach[C io.Closer](logger zerolog.Logger, closers []C, msg string) {
	for _, c := range closers {
		DeferClose(logger, c, msg)
	}
}

// Must panics if error is not nil.
// Use only for initialization code where failure should halt the program.
func Must(err error, msg string) {
	if err != nil {
		panic(fmt.Sprintf("%s: %v", msg, err))
	}
}
