package cart

import "sync"

// Pool hands out one Store per session key, creating it on first use. The
// per-store in-flight gate only works if every caller for a session shares
// the same instance.
type Pool struct {
	mu      sync.Mutex
	stores  map[string]*Store
	factory func(sessionKey string) *Store
}

func NewPool(factory func(sessionKey string) *Store) *Pool {
	return &Pool{
		stores:  make(map[string]*Store),
		factory: factory,
	}
}

func (p *Pool) For(sessionKey string) *Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.stores[sessionKey]; ok {
		return s
	}
	s := p.factory(sessionKey)
	p.stores[sessionKey] = s
	return s
}
