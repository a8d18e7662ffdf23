// Package fakestatsd is a UDP statsd server for tests that records every metric it
// receives.
package fakestatsd

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

type FakeStatsd struct {
	connection *net.UDPConn

	// mutable state
	mu      sync.RWMutex
	metrics []Metric
}

// New starts a server on a free local port. It is closed when the test ends.
func New(t testing.TB) *FakeStatsd {
	t.Helper()

	addr, err := net.ResolveUDPAddr("udp", "localhost:0")
	assert.Assert(t, err)

	conn, err := net.ListenUDP("udp", addr)
	assert.Assert(t, err)

	s := &FakeStatsd{
		connection: conn,
	}
	go s.listen()
	t.Cleanup(s.close)

	return s
}

func (s *FakeStatsd) Addr() string {
	return s.connection.LocalAddr().String()
}

type Metric struct {
	Name  string
	Value string
	Tags  []string
}

func (s *FakeStatsd) Metrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// Named returns the metrics received with the given name, in arrival order.
func (s *FakeStatsd) Named(name string) []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []Metric
	for _, m := range s.metrics {
		if m.Name == name {
			found = append(found, m)
		}
	}
	return found
}

func (s *FakeStatsd) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = nil
}

func (s *FakeStatsd) recordMetric(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = append(s.metrics, m)
}

func (s *FakeStatsd) listen() {
	buffer := make([]byte, 10000)

	for {
		numBytes, err := s.connection.Read(buffer)
		if errors.Is(err, net.ErrClosed) {
			return
		}

		for _, rawMetric := range bytes.Split(buffer[0:numBytes], []byte("\n")) {
			rawMetric = bytes.TrimSpace(rawMetric)
			if len(rawMetric) == 0 {
				continue
			}
			if metric, ok := parse(string(rawMetric)); ok {
				s.recordMetric(metric)
			}
		}
	}
}

func (s *FakeStatsd) close() {
	_ = s.connection.Close()
}

func parse(raw string) (Metric, bool) {
	name, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return Metric{}, false
	}
	value, rawTags, hasTags := strings.Cut(rest, "#")

	var tags []string
	if hasTags {
		tags = strings.Split(rawTags, ",")
	}
	return Metric{Name: name, Value: value, Tags: tags}, true
}
