/*
Package logpump turns the output streams of a child process into a single channel of
text lines.

Each stream is read on its own goroutine until it reaches end of stream. Lines are
queued without limit, so a slow consumer never blocks the process that is writing.
Lines that are not valid UTF-8 are dropped and counted. When every stream has ended and
the queue is empty the Lines channel is closed. Close closes it early, dropping whatever
is still queued, for owners that are done with the output whether or not it was read.

Ordering is preserved within a stream, not between streams.
*/
package logpump

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

// Line is a single line of output without its line terminator.
type Line struct {
	// Stream is the name of the stream the line was read from, e.g. "stdout"
	Stream string
	Text   string
}

func (l Line) String() string {
	return l.Stream + ": " + l.Text
}

// Stream is a named reader, typically one end of a process pipe.
type Stream struct {
	Name string
	R    io.Reader
}

type Pump struct {
	out  chan Line
	drop chan struct{}
	done chan struct{}
	stop chan struct{}

	// forwarded is closed when Lines has been closed
	forwarded chan struct{}
	stopOnce  sync.Once

	stats struct {
		lines   atomic.Int64
		dropped atomic.Int64
	}

	mu       sync.Mutex
	queue    []Line
	finished bool
	stopped  bool
	notify   chan struct{}
}

// Start begins reading every stream. Reading stops at the end of each stream, or when
// ctx is done, after which no more lines are delivered.
func Start(ctx context.Context, streams ...Stream) *Pump {
	p := &Pump{
		out:    make(chan Line),
		drop:   make(chan struct{}),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		notify: make(chan struct{}, 1),

		forwarded: make(chan struct{}),
	}

	g := errgroup.Group{}
	for _, s := range streams {
		s := s
		g.Go(func() error {
			return p.read(ctx, s)
		})
	}

	go func() {
		_ = g.Wait()
		p.finish()
		close(p.done)
	}()
	go p.forward(ctx)

	return p
}

// Lines returns the channel all streams are delivered on. It is closed once every stream
// has ended and all queued lines have been received.
func (p *Pump) Lines() <-chan Line {
	return p.out
}

// Done is closed when every stream has reached its end. Lines read before that point may
// still be waiting in the queue.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Close stops delivery and discards every queued line, then returns once Lines is
// closed. Streams still being read keep being read until they end, but nothing more is
// queued. It is safe to call more than once.
func (p *Pump) Close() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.queue = nil
		p.stopped = true
		p.mu.Unlock()
		close(p.stop)
	})
	<-p.forwarded
}

// Drain discards every line that is currently queued, without blocking, and returns how
// many were discarded.
func (p *Pump) Drain() int {
	p.mu.Lock()
	n := len(p.queue)
	p.queue = nil
	p.mu.Unlock()

	for {
		select {
		case _, ok := <-p.out:
			if !ok {
				return n
			}
			n++
		case p.drop <- struct{}{}:
			n++
		default:
			return n
		}
	}
}

// Read is the number of lines read from all streams, including dropped lines.
func (p *Pump) Read() int64 {
	return p.stats.lines.Load()
}

// Dropped is the number of lines discarded because they were not valid UTF-8.
func (p *Pump) Dropped() int64 {
	return p.stats.dropped.Load()
}

func (p *Pump) read(ctx context.Context, s Stream) error {
	r := bufio.NewReader(s.R)
	for {
		b, err := r.ReadBytes('\n')
		if len(b) > 0 {
			p.emit(s.Name, b)
		}
		// Any read error, including a pipe closed under us, is the end of this stream.
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (p *Pump) emit(stream string, b []byte) {
	p.stats.lines.Add(1)
	b = bytes.TrimSuffix(b, []byte("\n"))
	b = bytes.TrimSuffix(b, []byte("\r"))
	if !utf8.Valid(b) {
		p.stats.dropped.Add(1)
		return
	}

	p.mu.Lock()
	if !p.stopped {
		p.queue = append(p.queue, Line{Stream: stream, Text: string(b)})
	}
	p.mu.Unlock()
	p.wake()
}

func (p *Pump) finish() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
	p.wake()
}

func (p *Pump) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pump) forward(ctx context.Context) {
	defer close(p.forwarded)
	defer close(p.out)
	for {
		l, ok := p.next(ctx)
		if !ok {
			return
		}
		select {
		case p.out <- l:
		case <-p.drop:
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pump) next(ctx context.Context) (Line, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			l := p.queue[0]
			p.queue[0] = Line{}
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return l, true
		}
		finished := p.finished
		p.mu.Unlock()

		if finished {
			return Line{}, false
		}
		select {
		case <-p.notify:
		case <-p.stop:
			return Line{}, false
		case <-ctx.Done():
			return Line{}, false
		}
	}
}
