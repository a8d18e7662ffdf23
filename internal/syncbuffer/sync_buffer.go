// Package syncbuffer provides a bytes.Buffer that is safe for concurrent use.
package syncbuffer

import (
	"bytes"
	"strings"
	"sync"
)

type SyncBuffer struct {
	mu  sync.RWMutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.buf.String()
}

// Tail returns up to the last n complete or partial lines written, oldest first.
func (b *SyncBuffer) Tail(n int) []string {
	s := strings.TrimRight(b.String(), "\n")
	if s == "" || n <= 0 {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
