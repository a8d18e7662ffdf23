// Package poll repeats a check until it says to stop or a time limit is reached.
package poll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

const interval = 50 * time.Millisecond

type it func() (stop bool, err error)

// AssertIt will periodically call it up to duration. It is a function that returns
// a bool to stop the polling, and a resultant error. This function will assert that
// no error was returned.
func AssertIt(ctx context.Context, t testing.TB, duration time.Duration, it it) {
	t.Helper()
	err := ForIt(ctx, duration, it)
	assert.NilError(t, err)
}

// ForIt will periodically call it up to duration. It is a function that returns
// a bool to stop the polling, and a resultant error. If duration passes first the
// last error seen is included in the returned error.
func ForIt(ctx context.Context, duration time.Duration, it it) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var last error
	for {
		stop, err := it()
		if stop {
			return err
		}
		last = err

		select {
		case <-ctx.Done():
			if last != nil {
				return fmt.Errorf("%w: last error: %w", ctx.Err(), last)
			}
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
