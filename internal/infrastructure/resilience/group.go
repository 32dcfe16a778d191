package resilience

import (
	"context"
	"sync"
)

// Group manages one breaker per key so failures against one upstream never
// trip calls to another. Keys are typically hostnames.
type Group struct {
	prefix   string
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group. Every breaker created through it shares
// the same settings and is named "<prefix>:<key>".
func NewGroup(prefix string, settings Settings) *Group {
	return &Group{
		prefix:   prefix,
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Breaker returns the breaker for key, creating it on first use.
func (g *Group) Breaker(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[key]; ok {
		return b
	}

	b := New(g.prefix+":"+key, g.settings)
	g.breakers[key] = b
	return b
}

// Do runs fn through the breaker for key. A context already cancelled
// counts as a failure against that key's breaker only.
func (g *Group) Do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	return g.Breaker(key).Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
}

// States returns the current state of every breaker in the group.
func (g *Group) States() map[string]State {
	g.mu.Lock()
	defer g.mu.Unlock()

	states := make(map[string]State, len(g.breakers))
	for key, b := range g.breakers {
		states[key] = b.State()
	}
	return states
}

// Len returns the number of breakers created so far.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.breakers)
}
