package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestForIt(t *testing.T) {
	ctx := context.Background()

	t.Run("Stops when told", func(t *testing.T) {
		calls := 0
		err := ForIt(ctx, time.Second, func() (bool, error) {
			calls++
			return calls == 3, nil
		})
		assert.Check(t, err)
		assert.Check(t, cmp.Equal(calls, 3))
	})

	t.Run("Returns the error it stopped with", func(t *testing.T) {
		boom := errors.New("boom")
		err := ForIt(ctx, time.Second, func() (bool, error) {
			return true, boom
		})
		assert.Check(t, cmp.ErrorIs(err, boom))
	})

	t.Run("Times out with the last error", func(t *testing.T) {
		err := ForIt(ctx, 200*time.Millisecond, func() (bool, error) {
			return false, errors.New("not yet")
		})
		assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
		assert.Check(t, cmp.ErrorContains(err, "not yet"))
	})
}
