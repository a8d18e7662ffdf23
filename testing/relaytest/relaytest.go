// Package relaytest starts relays for tests and connects to them.
package relaytest

import (
	"context"
	"os"

	"github.com/gorilla/websocket"
	"gotest.tools/v3/assert"

	"github.com/circleci/nostrd/o11y"
	"github.com/circleci/nostrd/relayd"
	"github.com/circleci/nostrd/testing/internal/types"
)

// Run starts a relay for the test and stops it when the test ends. The test is skipped
// when no relay binary is configured and the default one is missing.
func Run(ctx context.Context, t types.TestingTB, conf relayd.Config) *relayd.Relay {
	t.Helper()
	ctx, span := o11y.StartSpan(ctx, "relaytest: run")
	defer span.End()
	span.AddField("test", t.Name())

	if conf.Binary == "" && os.Getenv("NOSTRD_BINARY") == "" {
		if _, err := os.Stat(relayd.DefaultBinary); err != nil {
			t.Skip("relay binary not available")
		}
	}

	r, err := relayd.Start(ctx, conf)
	assert.Assert(t, err)
	t.Cleanup(r.Close)

	span.AddField("url", r.URL())
	return r
}

// Dial opens a websocket connection to r, closed when the test ends.
func Dial(ctx context.Context, t types.TestingTB, r *relayd.Relay) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, r.URL(), nil)
	assert.Assert(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
