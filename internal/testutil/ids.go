package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "<prefix>-1", "<prefix>-2", ... so tests can
// predict the ids of instances started without an explicit id.
//
// Safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "test".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id. Implements engine.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
