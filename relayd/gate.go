package relayd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/circleci/nostrd/logpump"
)

// awaitReady consumes lines until one contains marker. It gives up when the timeout
// passes, when the relay's output ends, or when ctx is done. Once the relay has exited
// the lines it wrote before exiting are still read, so a marker logged just before exit
// counts as ready.
func awaitReady(ctx context.Context, lines <-chan logpump.Line, exited <-chan struct{},
	marker string, timeout time.Duration) (Outcome, error) {

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	sawExit := false
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				return OutcomeExited, fmt.Errorf("%w: output closed", errExited)
			}
			if strings.Contains(l.Text, marker) {
				return OutcomeReady, nil
			}
		case <-exited:
			sawExit = true
			exited = nil
		case <-deadline.C:
			if sawExit {
				return OutcomeExited, errExited
			}
			return OutcomeTimedOut, fmt.Errorf("%w: waited %s", errNotReady, timeout)
		case <-ctx.Done():
			return OutcomeCanceled, ctx.Err()
		}
	}
}
