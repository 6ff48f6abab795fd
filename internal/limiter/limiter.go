package limiter

import (
	"sync"
)

// Gate caps in-flight work per key and across all keys. Slots are
// non-blocking: callers that cannot get one are turned away.
type Gate struct {
	maxPerKey int
	maxTotal  int

	mu    sync.Mutex
	sem   map[string]int
	total int
}

type Options struct {
	MaxPerKey int
	MaxTotal  int
}

func New(opts Options) *Gate {
	if opts.MaxPerKey <= 0 {
		opts.MaxPerKey = 1
	}
	if opts.MaxTotal <= 0 {
		opts.MaxTotal = 4
	}
	return &Gate{maxPerKey: opts.MaxPerKey, maxTotal: opts.MaxTotal, sem: map[string]int{}}
}

// Allow tries to reserve a slot for key.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (g *Gate) Allow(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.total >= g.maxTotal || g.sem[key] >= g.maxPerKey {
		return func() {}, false
	}
	g.sem[key]++
	g.total++

	var once sync.Once
	return func() { once.Do(func() { g.release(key) }) }, true
}

func (g *Gate) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.total--
	if g.sem[key]--; g.sem[key] <= 0 {
		delete(g.sem, key)
	}
}

// InFlight returns the number of held slots.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}
