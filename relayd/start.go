package relayd

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/circleci/nostrd/o11y"
)

// Start launches the relay and returns once it has logged its readiness marker.
//
// Each attempt gets a new port (unless conf.Port is set) and a new working directory.
// An attempt fails when the marker is not seen within conf.ReadyTimeout or the relay
// exits first; the relay is then killed, its directory removed and another attempt
// made, up to conf.Attempts. When every attempt fails the error is a *SetupError.
//
// Cancelling ctx abandons the attempt in progress. It has no effect on a relay that has
// already been returned, use Stop or Close for that.
func Start(ctx context.Context, conf Config) (r *Relay, err error) {
	ctx, span := o11y.StartSpan(ctx, "relayd: start")
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("relayd.start", "result"))
	span.RecordMetric(o11y.Gauge("relayd.start.attempts", "attempts", "result"))

	conf = conf.withDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	span.AddField("binary", conf.Binary)
	span.AddField("max_attempts", conf.Attempts)

	var failures []*AttemptError
	n := 0
	op := func() error {
		n++
		var aerr *AttemptError
		r, aerr = startAttempt(ctx, conf, n)
		if aerr == nil {
			return nil
		}
		failures = append(failures, aerr)
		o11y.LogError(ctx, "relayd: attempt failed", o11y.AsWarning(aerr),
			o11y.Field("attempt", n),
			o11y.Field("outcome", aerr.Outcome),
			o11y.Field("tail", strings.Join(aerr.Tail, "\n")),
		)
		if aerr.Outcome == OutcomeCanceled {
			return backoff.Permanent(aerr)
		}
		return aerr
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(conf.Attempts-1)), ctx)
	err = backoff.Retry(op, b)
	span.AddField("attempts", n)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, fmt.Errorf("relayd: start abandoned after %d attempts: %w", n, ctx.Err())
	default:
		return nil, &SetupError{Binary: conf.Binary, Attempts: failures}
	}

	span.AddField("port", r.Port())
	span.AddField("pid", r.PID())
	o11y.Log(ctx, "relayd: ready",
		o11y.Field("url", r.URL()),
		o11y.Field("pid", r.PID()),
		o11y.Field("attempts", n),
	)
	return r, nil
}
