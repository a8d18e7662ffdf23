// Package testcontext provides contexts for tests that carry a working o11y provider,
// so code under test writes its spans to the test output.
package testcontext

import (
	"context"

	"github.com/circleci/nostrd/config/o11y"
)

// ctx is a global singleton, initialised at package time so concurrent tests share one provider
var ctx = newContext()

// Background returns a context for use in tests which contains a working o11y, so you get logs.
func Background() context.Context {
	return ctx
}

func newContext() context.Context {
	cx, _, _ := o11y.Otel(context.Background(), o11y.OtelConfig{
		Service: "test-service",
		Test:    true,
	})
	return cx
}
