// Package pin issues the 6-digit bearer credentials bound to registered users.
package pin

import (
	"fmt"
	"math/rand"
	"sync"
)

// Max is the largest pin value; pins are drawn uniformly from [1, Max].
const Max = 999999

// Generator issues unique zero-padded 6-digit pins. Uniqueness holds across
// the process lifetime; seed it with the pins of a loaded snapshot so restarts
// cannot collide with already-issued credentials.
type Generator struct {
	mu     sync.Mutex
	issued map[int]struct{}
}

// NewGenerator creates a generator with no issued pins.
func NewGenerator() *Generator {
	return &Generator{issued: make(map[int]struct{})}
}

// Seed marks a previously issued pin as taken. Non-numeric values are ignored.
func (g *Generator) Seed(pins ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range pins {
		var n int
		if _, err := fmt.Sscanf(p, "%d", &n); err == nil {
			g.issued[n] = struct{}{}
		}
	}
}

// Get draws a fresh pin, rejecting values already issued. There is no retry
// bound; the space vastly exceeds expected load, so rejection is rare.
func (g *Generator) Get() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	num := rand.Intn(Max) + 1
	for {
		if _, taken := g.issued[num]; !taken {
			break
		}
		num = rand.Intn(Max) + 1
	}
	g.issued[num] = struct{}{}
	return fmt.Sprintf("%06d", num)
}
