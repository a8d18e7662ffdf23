package relayd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/circleci/nostrd/internal/syncbuffer"
	"github.com/circleci/nostrd/logpump"
)

// releaseTimeout bounds the wait for the pumps to reach end of stream after the relay
// has exited. A grandchild holding the pipes open would otherwise keep them forever.
const releaseTimeout = time.Second

// process is one running relay with its output attached to a pump.
type process struct {
	cmd        *exec.Cmd
	pump       *logpump.Pump
	transcript *syncbuffer.SyncBuffer
	readers    []*os.File

	exited  chan struct{}
	waitErr error
}

func spawn(binary string, args, environ []string, echo io.Writer) (_ *process, err error) {
	var files []*os.File
	defer func() {
		if err != nil {
			for _, f := range files {
				_ = f.Close()
			}
		}
	}()
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	files = append(files, outR, outW)
	errR, errW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	files = append(files, errR, errW)

	//#nosec:G204 // running the configured relay is the point
	cmd := exec.Command(binary, args...)
	cmd.Env = environ
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	// the child has its own copies, ours would stop the pumps seeing end of stream
	_ = outW.Close()
	_ = errW.Close()

	p := &process{
		cmd:        cmd,
		transcript: &syncbuffer.SyncBuffer{},
		readers:    []*os.File{outR, errR},
		exited:     make(chan struct{}),
	}
	var tee io.Writer = p.transcript
	if echo != nil {
		tee = io.MultiWriter(p.transcript, &lockedWriter{w: echo})
	}
	// the pumps outlive the caller's context, they end with the pipes
	p.pump = logpump.Start(context.Background(),
		logpump.Stream{Name: "stdout", R: io.TeeReader(outR, tee)},
		logpump.Stream{Name: "stderr", R: io.TeeReader(errR, tee)},
	)

	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

// kill is best effort, it is used on attempts that have already failed.
func (p *process) kill() {
	_ = p.cmd.Process.Kill()
	<-p.exited
	p.release()
}

// terminate asks the relay to stop with SIGINT, killing it if it has not exited after
// grace. It returns once the relay has exited.
func (p *process) terminate(grace time.Duration) error {
	defer p.release()

	select {
	case <-p.exited:
		return p.exitErr()
	default:
	}

	err := p.cmd.Process.Signal(os.Interrupt)
	switch {
	case errors.Is(err, os.ErrProcessDone):
		<-p.exited
		return p.exitErr()
	case err != nil:
		_ = p.cmd.Process.Kill()
		<-p.exited
		return fmt.Errorf("%w: failed to SIGINT: %w", ErrSignal, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return p.exitErr()
	case <-timer.C:
		_ = p.cmd.Process.Kill()
		<-p.exited
		return fmt.Errorf("%w: relay still running %s after SIGINT, killed", ErrSignal, grace)
	}
}

// exitErr ignores the exit status, a relay stopped by a signal is a normal stop.
func (p *process) exitErr() error {
	var exitErr *exec.ExitError
	if p.waitErr == nil || errors.As(p.waitErr, &exitErr) {
		return nil
	}
	return fmt.Errorf("%w: failed waiting for relay: %w", ErrIO, p.waitErr)
}

func (p *process) release() {
	select {
	case <-p.pump.Done():
	case <-time.After(releaseTimeout):
	}
	for _, r := range p.readers {
		_ = r.Close()
	}
	p.pump.Close()
}

// lockedWriter serialises the two pumps' writes to the echo writer. A failing echo
// writer must not stop the capture, so its errors are dropped.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(p)
	return len(p), nil
}
