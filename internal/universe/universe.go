// Package universe tracks the set of tradable symbols this deployment
// serves. The batch refresher walks it; the HTTP API uses it to reject
// unknown symbols before spending provider budget on them.
package universe

import (
	"sort"
	"strings"
	"sync"
)

// Registry is a concurrent-safe symbol set. Symbols are case-normalized to
// upper case on the way in.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

// New creates a Registry seeded with the given symbols.
func New(seed []string) *Registry {
	r := &Registry{symbols: make(map[string]struct{}, len(seed))}
	for _, s := range seed {
		r.symbols[normalize(s)] = struct{}{}
	}
	return r
}

// Symbols returns a sorted snapshot of the universe.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether the symbol is part of the universe.
func (r *Registry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[normalize(symbol)]
	return ok
}

// Add inserts a symbol. Adding an existing symbol is a no-op.
func (r *Registry) Add(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symbols[normalize(symbol)] = struct{}{}
}

// Remove deletes a symbol. Removing an unknown symbol is a no-op.
func (r *Registry) Remove(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.symbols, normalize(symbol))
}

// Len returns the universe size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
