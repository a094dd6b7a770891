// Package registry holds the in-memory set of cutscenes, the runtime source of
// truth for every lookup. Keys are case-folded; display names are preserved.
package registry

import (
	"sort"
	"sync"

	"github.com/nonxedy/nonscenes/internal/cutscene"
)

// Registry is a concurrency-safe name to cutscene map.
type Registry struct {
	mu    sync.RWMutex
	items map[string]cutscene.Cutscene
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{items: make(map[string]cutscene.Cutscene)}
}

// Put stores c, replacing any cutscene with the same key.
func (r *Registry) Put(c cutscene.Cutscene) {
	if c.IsZero() {
		return
	}
	r.mu.Lock()
	r.items[c.Key()] = c
	r.mu.Unlock()
}

// PutIfAbsent stores c unless its key is already taken and reports whether it
// was stored.
func (r *Registry) PutIfAbsent(c cutscene.Cutscene) bool {
	if c.IsZero() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.Key()]; ok {
		return false
	}
	r.items[c.Key()] = c
	return true
}

// Get returns the cutscene registered under name.
func (r *Registry) Get(name string) (cutscene.Cutscene, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[cutscene.Key(name)]
	return c, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Delete removes name and returns the removed cutscene.
func (r *Registry) Delete(name string) (cutscene.Cutscene, bool) {
	key := cutscene.Key(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[key]
	if ok {
		delete(r.items, key)
	}
	return c, ok
}

// Len returns the number of registered cutscenes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// List returns every cutscene sorted by key.
func (r *Registry) List() []cutscene.Cutscene {
	r.mu.RLock()
	out := make([]cutscene.Cutscene, 0, len(r.items))
	for _, c := range r.items {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Names returns the display names sorted case-insensitively.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = c.Name()
	}
	return names
}

// Summaries returns name and frame count for every cutscene, sorted by name.
func (r *Registry) Summaries() []cutscene.Summary {
	list := r.List()
	out := make([]cutscene.Summary, len(list))
	for i, c := range list {
		out[i] = c.Summary()
	}
	return out
}
