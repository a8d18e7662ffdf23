package relayd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/circleci/nostrd/config/env"
)

const (
	DefaultBinary   = "bin/nostr-rs-relay_0_9_0_linux"
	DefaultAddress  = "127.0.0.1"
	DefaultMarker   = "control message listener started"
	DefaultLogLevel = "debug"

	defaultAttempts     = 5
	defaultReadyTimeout = 3 * time.Second
	defaultStopTimeout  = 10 * time.Second
)

// Config describes the relay to start. The zero value is usable, every unset field
// takes its default.
type Config struct {
	// Binary is the relay executable, NOSTRD_BINARY or DefaultBinary if empty.
	Binary string
	// Args are passed to the relay ahead of the generated --config and --db arguments.
	Args []string
	// Attempts is the maximum number of spawns, 5 if zero.
	Attempts int
	// Address is the interface the relay binds.
	Address string
	// Port is used for every attempt if set, otherwise a free port is chosen per attempt.
	Port int

	// ReadyTimeout bounds each attempt's wait for Marker.
	ReadyTimeout time.Duration
	// StopTimeout is how long Stop waits after SIGINT before killing the relay.
	StopTimeout time.Duration
	// Marker is the log text that means the relay is accepting connections.
	Marker string
	// LogLevel is given to the relay as RUST_LOG. The marker is only logged at debug.
	LogLevel string
	// Env is added to the relay's environment after the parent's.
	Env []string
	// TempDir is where working directories are created, os.TempDir() if empty.
	TempDir string
	// Echo, if set, receives a copy of everything the relay writes.
	Echo io.Writer
}

// Default returns the configuration Start uses for a zero Config.
func Default() Config {
	return Config{}.withDefaults()
}

// ConfigFromEnv reads the NOSTRD_* variables over the defaults.
func ConfigFromEnv() (Config, error) {
	c := Default()
	l := env.NewLoader()
	l.String(&c.Binary, "NOSTRD_BINARY")
	l.Fields(&c.Args, "NOSTRD_ARGS")
	l.Int(&c.Attempts, "NOSTRD_ATTEMPTS")
	l.String(&c.Address, "NOSTRD_ADDRESS")
	l.Int(&c.Port, "NOSTRD_PORT")
	l.Duration(&c.ReadyTimeout, "NOSTRD_READY_TIMEOUT")
	l.Duration(&c.StopTimeout, "NOSTRD_STOP_TIMEOUT")
	l.String(&c.LogLevel, "NOSTRD_LOG_LEVEL")
	echo := false
	l.Bool(&echo, "NOSTRD_ECHO")
	if err := l.Err(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if echo {
		c.Echo = os.Stderr
	}
	return c, nil
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = os.Getenv("NOSTRD_BINARY")
	}
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.Attempts == 0 {
		c.Attempts = defaultAttempts
	}
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = defaultStopTimeout
	}
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	// callers keep their slices
	c.Args = append([]string(nil), c.Args...)
	c.Env = append([]string(nil), c.Env...)
	return c
}

func (c Config) validate() error {
	switch {
	case c.Attempts < 0:
		return fmt.Errorf("%w: attempts must not be negative, got %d", ErrInvalidConfig, c.Attempts)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.ReadyTimeout < 0:
		return fmt.Errorf("%w: negative ready timeout", ErrInvalidConfig)
	case c.StopTimeout < 0:
		return fmt.Errorf("%w: negative stop timeout", ErrInvalidConfig)
	}

	fi, err := os.Stat(c.Binary)
	if err != nil {
		return fmt.Errorf("%w: relay binary: %w", ErrInvalidConfig, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: relay binary %q is not a regular file", ErrInvalidConfig, c.Binary)
	}
	return nil
}

func (c Config) environ() []string {
	e := os.Environ()
	e = append(e, "RUST_LOG="+c.LogLevel)
	return append(e, c.Env...)
}
