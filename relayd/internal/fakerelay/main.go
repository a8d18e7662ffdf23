// Command fakerelay stands in for a relay in tests. It reads the same arguments and
// config file, binds the configured address, and serves a websocket echo endpoint. How
// it behaves around readiness is chosen with --mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/circleci/nostrd/closer"
	"github.com/circleci/nostrd/relayconf"
	"github.com/circleci/nostrd/termination"
)

const marker = "control message listener started"

type cli struct {
	Config string        `required:"" type:"existingfile" help:"Relay config file."`
	DB     string        `name:"db" required:"" type:"existingdir" help:"Database directory."`
	Mode   string        `enum:"ready,silent,exit,ignore-interrupt" default:"ready" help:"How to behave around readiness."`
	Delay  time.Duration `default:"0s" help:"Wait this long after binding before logging readiness."`
	Chatty int           `default:"0" help:"Lines of output to write once ready."`
	Record string        `env:"FAKERELAY_RECORD" help:"Append the database directory and port to this file at startup."`
}

func main() {
	c := &cli{}
	kong.Parse(c)

	if err := run(c); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "fakerelay: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli) error {
	n, err := relayconf.Read(c.Config)
	if err != nil {
		return err
	}
	if c.Record != "" {
		if err := record(c.Record, c.DB, n.Port); err != nil {
			return err
		}
	}
	logf("INFO", "starting on %s db=%s rust_log=%s", n.HostPort(), c.DB, os.Getenv("RUST_LOG"))

	switch c.Mode {
	case "exit":
		return errors.New("refusing to start")
	case "silent":
		_ = termination.Handle(context.Background())
		return nil
	case "ignore-interrupt":
		signal.Ignore(os.Interrupt)
	}

	ln, err := net.Listen("tcp", n.HostPort())
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           http.HandlerFunc(echo),
		ReadHeaderTimeout: 5 * time.Second,
	}

	time.Sleep(c.Delay)
	logf("INFO", "listening on: %s", n.HostPort())
	if os.Getenv("RUST_LOG") == "debug" {
		logf("DEBUG", marker)
	}
	for i := 0; i < c.Chatty; i++ {
		logf("DEBUG", "chatter %d", i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	if c.Mode == "ignore-interrupt" {
		// only a kill stops us now
		return g.Wait()
	}
	g.Go(func() error {
		err := termination.Handle(ctx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	})

	err = g.Wait()
	if errors.Is(err, termination.ErrTerminated) {
		logf("INFO", "shutting down")
		return nil
	}
	return err
}

var upgrader = websocket.Upgrader{}

func echo(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func record(path, db string, port int) (err error) {
	// #nosec:G304 // test fixture
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer closer.ErrorHandler(f, &err)

	_, err = fmt.Fprintf(f, "%s %d\n", db, port)
	return err
}

func logf(level, format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stdout, "%s %-5s nostr_rs_relay: %s\n",
		time.Now().UTC().Format(time.RFC3339Nano), level, fmt.Sprintf(format, args...))
}
