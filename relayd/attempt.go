package relayd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/circleci/nostrd/freeport"
	"github.com/circleci/nostrd/o11y"
	"github.com/circleci/nostrd/relayconf"
)

const tailLines = 20

// startAttempt makes one attempt at a ready relay. On failure nothing it created is left
// behind: the process has exited and the working directory is gone.
func startAttempt(ctx context.Context, conf Config, n int) (r *Relay, aerr *AttemptError) {
	ctx, span := o11y.StartSpan(ctx, "relayd: attempt")
	defer func() {
		var err error
		if aerr != nil {
			span.AddField("outcome", aerr.Outcome)
			err = o11y.AsWarning(aerr)
		} else {
			span.AddField("outcome", OutcomeReady)
		}
		o11y.End(span, &err)
	}()
	span.RecordMetric(o11y.Incr("relayd.attempt", "outcome"))
	span.RecordMetric(o11y.Timing("relayd.attempt.duration", "outcome"))

	id := uuid.NewString()
	span.AddField("attempt", n)
	span.AddField("attempt_id", id)

	fail := func(port int, outcome Outcome, err error, p *process) *AttemptError {
		a := &AttemptError{Attempt: n, Port: port, Outcome: outcome, Err: err}
		if p != nil {
			a.Tail = p.transcript.Tail(tailLines)
		}
		return a
	}

	port := conf.Port
	if port == 0 {
		var err error
		port, err = freeport.Get(ctx)
		if err != nil {
			return nil, fail(0, OutcomeSpawnFailed, fmt.Errorf("%w: %w", ErrIO, err), nil)
		}
	}
	span.AddField("port", port)

	dir, err := os.MkdirTemp(conf.TempDir, "nostrd_"+id[:8]+"_")
	if err != nil {
		return nil, fail(port, OutcomeSpawnFailed, fmt.Errorf("%w: failed to create working directory: %w", ErrIO, err), nil)
	}
	span.AddField("dir", dir)

	network := relayconf.Network{Address: conf.Address, Port: port}
	files, err := relayconf.Write(dir, network)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fail(port, OutcomeSpawnFailed, fmt.Errorf("%w: %w", ErrIO, err), nil)
	}

	p, err := spawn(conf.Binary, files.Args(conf.Args...), conf.environ(), conf.Echo)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fail(port, OutcomeSpawnFailed, fmt.Errorf("%w: %w", ErrIO, err), nil)
	}
	span.AddField("pid", p.pid())

	outcome, err := awaitReady(ctx, p.pump.Lines(), p.exited, conf.Marker, conf.ReadyTimeout)
	if outcome != OutcomeReady {
		p.kill()
		_ = os.RemoveAll(dir)
		return nil, fail(port, outcome, err, p)
	}

	return &Relay{
		provider: o11y.FromContext(ctx),
		conf:     conf,
		network:  network,
		files:    files,
		dir:      dir,
		proc:     p,
	}, nil
}
