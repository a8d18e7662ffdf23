package freeport

import (
	"context"
	"net"
	"strconv"
	"testing"

	"gotest.tools/v3/assert"
)

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Port can be bound", func(t *testing.T) {
		port, err := Get(ctx)
		assert.Assert(t, err)
		assert.Check(t, port > 0)

		l, err := net.Listen("tcp", net.JoinHostPort(Host, strconv.Itoa(port)))
		assert.Assert(t, err)
		assert.Check(t, l.Close())
	})

	t.Run("Never returns a port held by this process", func(t *testing.T) {
		held, err := net.Listen("tcp", net.JoinHostPort(Host, "0"))
		assert.Assert(t, err)
		defer held.Close()
		heldPort := held.Addr().(*net.TCPAddr).Port

		seen := map[int]bool{}
		for i := 0; i < 20; i++ {
			port, err := Get(ctx)
			assert.Assert(t, err)
			assert.Check(t, port != heldPort)

			// keep each one bound so the OS must hand out a different one next time
			l, err := net.Listen("tcp", net.JoinHostPort(Host, strconv.Itoa(port)))
			assert.Assert(t, err)
			defer l.Close()

			assert.Check(t, !seen[port], "port %d returned twice", port)
			seen[port] = true
		}
	})
}
