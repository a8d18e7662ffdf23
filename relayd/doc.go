/*
Package relayd runs a relay server process for tests.

Start writes a config file into a fresh working directory, starts the relay pointed at
it, and waits for the relay to log that it is accepting connections. The relay's stdout
and stderr are read continuously into a channel of lines, so the relay never blocks on a
full pipe however little of its output is consumed.

	r, err := relayd.Start(ctx, relayd.Config{Binary: "bin/relay"})
	if err != nil {
		return err
	}
	defer r.Close()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.URL(), nil)

Stop interrupts the relay, waits for it to exit and removes the working directory.
*/
package relayd
