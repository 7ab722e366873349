package payment

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// ReferenceGenerator issues INV-<epoch millis>-<4 digits> references.
// The suffix walks a per-process sequence from a random start, so two
// references from one generator only collide after 10000 calls in the
// same millisecond.
type ReferenceGenerator struct {
	now func() time.Time
	seq atomic.Uint32
}

func NewReferenceGenerator() *ReferenceGenerator {
	return newReferenceGenerator(time.Now)
}

func newReferenceGenerator(now func() time.Time) *ReferenceGenerator {
	g := &ReferenceGenerator{now: now}
	g.seq.Store(rand.Uint32N(10000))
	return g
}

func (g *ReferenceGenerator) Next() string {
	n := g.seq.Add(1) % 10000
	return fmt.Sprintf("INV-%d-%04d", g.now().UnixMilli(), n)
}
