package relayd

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIO is a failure of the operating system to do something for us, such as find a
	// free port, create a directory, or start a process.
	ErrIO = errors.New("relayd: io failure")
	// ErrSignal is a failure to deliver a signal to the relay or to see it exit.
	ErrSignal = errors.New("relayd: signal failure")
	// ErrSetupExhausted means every attempt to start a ready relay failed.
	ErrSetupExhausted = errors.New("relayd: setup attempts exhausted")
	// ErrInvalidConfig is returned before any attempt is made.
	ErrInvalidConfig = errors.New("relayd: invalid config")

	errNotReady = errors.New("marker not seen before the deadline")
	errExited   = errors.New("relay exited before it was ready")
)

// Outcome is how a single start attempt ended.
type Outcome int

const (
	OutcomeReady Outcome = iota
	OutcomeTimedOut
	OutcomeExited
	OutcomeSpawnFailed
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeExited:
		return "exited"
	case OutcomeSpawnFailed:
		return "spawn_failed"
	case OutcomeCanceled:
		return "canceled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// AttemptError describes one failed attempt. Tail holds the last lines the relay wrote.
type AttemptError struct {
	Attempt int
	Port    int
	Outcome Outcome
	Tail    []string
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %d on port %d %s: %v", e.Attempt, e.Port, e.Outcome, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// SetupError is returned by Start when no attempt produced a ready relay.
type SetupError struct {
	Binary   string
	Attempts []*AttemptError
}

func (e *SetupError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "%v: %s did not become ready after %d attempts",
		ErrSetupExhausted, e.Binary, len(e.Attempts))
	for _, a := range e.Attempts {
		b.WriteString("; ")
		b.WriteString(a.Error())
	}
	return b.String()
}

func (e *SetupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrSetupExhausted)
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}
