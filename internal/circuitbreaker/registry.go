package circuitbreaker

import "sync"

// Registry holds one Breaker per destination URL.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry creates an empty registry whose breakers use cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

// For returns the breaker for destination, creating it on first use.
func (r *Registry) For(destination string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[destination]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[destination]; ok {
		return b
	}
	b = NewBreaker(r.config)
	r.breakers[destination] = b
	return b
}

// States returns a snapshot of every known destination's state.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for k, b := range r.breakers {
		out[k] = b.State()
	}
	return out
}
