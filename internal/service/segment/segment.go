// Package segment turns a stream of transcript fragments into turn boundaries.
package segment

import (
	"fmt"
	"sync/atomic"
)

// Generator hands out turn IDs. Safe for concurrent use.
type Generator struct {
	counter uint64
}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) Next(sessionId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-turn-%d", sessionId, n)
}
