/*
Package freeport asks the operating system for an unused local TCP port.

The port is released before it is returned, so another process may claim it before the
caller binds it. Callers that need a reliable bind should be prepared to retry with a new
port.
*/
package freeport

import (
	"context"
	"fmt"
	"net"
)

// Host is the address the probe listener is bound to.
const Host = "127.0.0.1"

// Get returns a port that was free on the loopback interface at the time of the call.
func Get(ctx context.Context) (port int, err error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", net.JoinHostPort(Host, "0"))
	if err != nil {
		return 0, fmt.Errorf("failed to listen for a free port: %w", err)
	}
	defer func() {
		cerr := l.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("failed to release free port: %w", cerr)
			port = 0
		}
	}()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address type %T", l.Addr())
	}
	return addr.Port, nil
}
