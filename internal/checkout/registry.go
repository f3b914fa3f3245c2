package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("checkout session not found")

type entry struct {
	machine  *Machine
	lastSeen time.Time
}

// Registry holds the live checkout machines by draft id and expires
// abandoned ones so their drafts are discarded.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	log     *zap.Logger
}

func NewRegistry(ttl time.Duration, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		ttl:     ttl,
		log:     log,
	}
}

// Put registers a machine under its draft id and returns that id.
func (r *Registry) Put(m *Machine) string {
	id := m.Draft().ID
	r.mu.Lock()
	r.entries[id] = &entry{machine: m, lastSeen: time.Now()}
	r.mu.Unlock()
	return id
}

func (r *Registry) Get(id string) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = time.Now()
	return e.machine, nil
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Run sweeps expired sessions until the context is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			r.log.Info("expired abandoned checkout", zap.String("draft_id", id))
		}
	}
}
