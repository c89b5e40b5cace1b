package clientstate

import (
	"slices"
	"sync"
)

// Partition holds one store per key, such as the messages of each direct
// message conversation. Stores are created on first use.
type Partition[T Entity] struct {
	mu       sync.Mutex
	stores   map[string]*Store[T]
	newStore func(key string) *Store[T]
}

func NewPartition[T Entity](newStore func(key string) *Store[T]) *Partition[T] {
	return &Partition[T]{
		stores:   make(map[string]*Store[T]),
		newStore: newStore,
	}
}

// Get returns the store for key, creating it if needed.
func (p *Partition[T]) Get(key string) *Store[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stores[key]
	if !ok {
		st = p.newStore(key)
		p.stores[key] = st
	}
	return st
}

func (p *Partition[T]) Lookup(key string) (*Store[T], bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stores[key]
	return st, ok
}

// Drop forgets the store for key. Pending fetches into it are discarded.
func (p *Partition[T]) Drop(key string) {
	p.mu.Lock()
	st, ok := p.stores[key]
	delete(p.stores, key)
	p.mu.Unlock()
	if ok {
		st.Invalidate()
	}
}

func (p *Partition[T]) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.stores))
	for k := range p.stores {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
