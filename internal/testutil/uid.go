package testutil

import (
	"fmt"
	"sync"
)

// UIDGenerator hands out placeholder ids tag-1, tag-2, ... so that lifted
// values get the same ids on every run and golden SQL stays stable.
//
// Thread-safety: all methods are safe for concurrent use.
type UIDGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewUIDGenerator creates a generator. An empty prefix defaults to "tag".
func NewUIDGenerator(prefix string) *UIDGenerator {
	if prefix == "" {
		prefix = "tag"
	}
	return &UIDGenerator{prefix: prefix}
}

// Next returns the next id.
func (g *UIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Reset restarts the sequence, so the next id is <prefix>-1 again.
func (g *UIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
