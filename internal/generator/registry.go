package generator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperifyio/postforge/internal/platform"
)

// Registry maps platform ids to generators. A zero Registry is ready to use.
type Registry struct {
	mu   sync.RWMutex
	gens map[platform.ID]Generator
}

// Register adds g, replacing any existing generator for the same platform.
func (r *Registry) Register(g Generator) error {
	if g == nil || g.Platform() == "" {
		return fmt.Errorf("register generator: missing platform id")
	}
	if c := g.Constraint(); c.MaxLength <= 0 || c.MaxPosts <= 0 {
		return fmt.Errorf("register generator %s: invalid constraint", g.Platform())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens == nil {
		r.gens = map[platform.ID]Generator{}
	}
	r.gens[g.Platform()] = g
	return nil
}

// Get returns the generator for id.
func (r *Registry) Get(id platform.ID) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gens[id]
	return g, ok
}

// Resolve maps a caller-supplied name (including aliases such as "x") to a
// registered platform id.
func (r *Registry) Resolve(name string) (platform.ID, bool) {
	if id, ok := platform.Normalize(name); ok {
		if _, ok := r.Get(id); ok {
			return id, true
		}
	}
	id := platform.ID(strings.ToLower(strings.TrimSpace(name)))
	_, ok := r.Get(id)
	return id, ok
}

// IDs returns registered platform ids in sorted order.
func (r *Registry) IDs() []platform.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]platform.ID, 0, len(r.gens))
	for id := range r.gens {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultRegistry returns a registry holding a generator for every built-in
// platform.
func DefaultRegistry() *Registry {
	r := &Registry{}
	for _, g := range []Generator{
		NewTwitter(), NewLinkedIn(), NewInstagram(), NewFacebook(),
		NewThreads(), NewTikTok(), NewYouTube(),
	} {
		_ = r.Register(g)
	}
	return r
}
