// Package template holds the single-slot block template cache and the
// background loop that keeps it fresh. The cache and its known-nonce set
// rotate together as one unit: a prover snapshotting the template always
// sees the known-nonce set that belongs to it, never a mix of old template
// with new nonces or vice versa.
package template

import (
	"sync"

	"github.com/tos-network/tos-pool/internal/chain"
)

// Snapshot is an immutable view of the current rotation unit: the template
// in force plus the generation it belongs to. Holding a Snapshot never blocks
// a concurrent Rotate; the cache hands out a new Snapshot value instead of
// mutating this one in place.
type Snapshot struct {
	Template   *chain.BlockTemplate
	Generation uint64
}

// Cache is the operator's single-slot template: one current BlockTemplate and
// the set of nonces already observed against it, guarded together so they
// always rotate atomically.
type Cache struct {
	mu           sync.RWMutex
	template     *chain.BlockTemplate
	generation   uint64
	knownNonces  map[chain.Nonce]struct{}
}

// New returns an empty cache with no template installed yet.
func New() *Cache {
	return &Cache{knownNonces: make(map[chain.Nonce]struct{})}
}

// Snapshot returns the current rotation unit. Safe to call concurrently with
// Rotate and ObserveNonce; never returns a torn view of template+nonces.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Template: c.template, Generation: c.generation}
}

// Rotate installs a new template as the current rotation unit, discarding the
// previous known-nonce set. Called only by the TemplateRefresher.
func (c *Cache) Rotate(tmpl *chain.BlockTemplate) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.template = tmpl
	c.generation++
	c.knownNonces = make(map[chain.Nonce]struct{})
	return Snapshot{Template: c.template, Generation: c.generation}
}

// ObserveNonce records a nonce as seen against the rotation unit identified by
// generation, rejecting it as a duplicate if the unit has since rotated away
// or the nonce was already observed. Returns true if this is the first time
// the nonce has been seen against the still-current template.
func (c *Cache) ObserveNonce(generation uint64, nonce chain.Nonce) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	if _, seen := c.knownNonces[nonce]; seen {
		return false
	}
	c.knownNonces[nonce] = struct{}{}
	return true
}
