// Package termination turns an interrupt or terminate signal into an error, for use as
// one of the goroutines of a process's run group.
package termination

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var ErrTerminated = errors.New("terminated")

// Handle blocks until the process receives SIGINT or SIGTERM, returning ErrTerminated,
// or until ctx is done, returning nil.
func Handle(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		return fmt.Errorf("%w: %s", ErrTerminated, sig)
	case <-ctx.Done():
		return nil
	}
}
