package relayd

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/circleci/nostrd/logpump"
	"github.com/circleci/nostrd/o11y"
	"github.com/circleci/nostrd/relayconf"
)

// Relay is a running relay process that has reported it is ready. It owns the process,
// its working directory and its output until Stop or Close is called.
type Relay struct {
	provider o11y.Provider
	conf     Config
	network  relayconf.Network
	files    relayconf.Files
	dir      string
	proc     *process

	stopOnce sync.Once
	stopErr  error
}

// URL is the websocket endpoint of the relay.
func (r *Relay) URL() string {
	return "ws://" + net.JoinHostPort(r.network.Address, strconv.Itoa(r.network.Port))
}

func (r *Relay) Addr() string {
	return r.network.Address
}

func (r *Relay) Port() int {
	return r.network.Port
}

func (r *Relay) PID() int {
	return r.proc.pid()
}

func (r *Relay) Binary() string {
	return r.conf.Binary
}

// WorkDir holds the relay's config file and database. It is removed by Stop.
func (r *Relay) WorkDir() string {
	return r.dir
}

// ConfigFile is the path of the config file the relay was started with.
func (r *Relay) ConfigFile() string {
	return r.files.Config
}

// Logs delivers the relay's output lines that were not consumed while waiting for it to
// become ready. It is closed once the relay's output has ended, or by Stop, which
// discards lines that were never received. Transcript keeps them.
func (r *Relay) Logs() <-chan logpump.Line {
	return r.proc.pump.Lines()
}

// Transcript is all the output captured so far, including lines already received from
// Logs or discarded by DrainLogs.
func (r *Relay) Transcript() string {
	return r.proc.transcript.String()
}

// Exited is closed when the relay process has exited, for whatever reason.
func (r *Relay) Exited() <-chan struct{} {
	return r.proc.exited
}

// DrainLogs discards every log line buffered so far without blocking, and returns how
// many were discarded.
func (r *Relay) DrainLogs() int {
	return r.proc.pump.Drain()
}

// WaitForLog receives from Logs until a line contains substr.
func (r *Relay) WaitForLog(ctx context.Context, substr string) (logpump.Line, error) {
	for {
		select {
		case l, ok := <-r.Logs():
			if !ok {
				return logpump.Line{}, fmt.Errorf("relay output ended without %q", substr)
			}
			if strings.Contains(l.Text, substr) {
				return l, nil
			}
		case <-ctx.Done():
			return logpump.Line{}, ctx.Err()
		}
	}
}

// Stop interrupts the relay, waits for it to exit and removes its working directory.
// Only the first call does anything, later calls return the first call's result.
func (r *Relay) Stop() error {
	r.stopOnce.Do(func() {
		r.stopErr = r.stop()
	})
	return r.stopErr
}

// Close is Stop for use with defer and t.Cleanup, any error is discarded.
func (r *Relay) Close() {
	_ = r.Stop()
}

func (r *Relay) stop() (err error) {
	ctx := o11y.WithProvider(context.Background(), r.provider)
	_, span := o11y.StartSpan(ctx, "relayd: stop")
	defer o11y.End(span, &err)
	span.RecordMetric(o11y.Timing("relayd.stop", "result"))
	span.AddField("pid", r.PID())
	span.AddField("port", r.Port())

	err = r.proc.terminate(r.conf.StopTimeout)
	if rerr := os.RemoveAll(r.dir); rerr != nil && err == nil {
		err = fmt.Errorf("%w: failed to remove working directory: %w", ErrIO, rerr)
	}
	return err
}
