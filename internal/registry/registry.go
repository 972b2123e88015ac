// Package registry tracks the provers an operator has seen: when each was
// last active and what share difficulty it has been assigned. It holds no
// durable state; a restart starts every prover over at the base difficulty.
package registry

import (
	"sync"
	"time"

	"github.com/tos-network/tos-pool/internal/posw"
)

// Prover is one registered prover's liveness and difficulty assignment.
type Prover struct {
	Address         string
	LastSeen        time.Time
	ShareDifficulty uint64
}

// ProverRegistry is the in-memory prover_address -> {last_seen,
// share_difficulty} map. Every operation is safe for concurrent use: the
// dispatcher writes it while the read-only API lists it.
type ProverRegistry struct {
	mu      sync.RWMutex
	provers map[string]*Prover
}

// New returns an empty prover registry.
func New() *ProverRegistry {
	return &ProverRegistry{provers: make(map[string]*Prover)}
}

// Ensure returns the prover's entry, creating it at BaseShareDifficulty on
// first sight. This is the registration path for PoolRegister.
func (r *ProverRegistry) Ensure(address string) *Prover {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.provers[address]
	if !ok {
		p = &Prover{
			Address:         address,
			LastSeen:        time.Now(),
			ShareDifficulty: posw.BaseShareDifficulty,
		}
		r.provers[address] = p
	}
	return p
}

// Touch records activity from a known prover. Unknown addresses are a no-op:
// the dispatcher must Ensure before crediting a share.
func (r *ProverRegistry) Touch(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.provers[address]; ok {
		p.LastSeen = time.Now()
	}
}

// DifficultyOf returns the prover's current share difficulty, or
// BaseShareDifficulty if the prover is unknown.
func (r *ProverRegistry) DifficultyOf(address string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.provers[address]; ok {
		return p.ShareDifficulty
	}
	return posw.BaseShareDifficulty
}

// Retarget sets a prover's share difficulty directly. Unused today: per-prover
// difficulty retargeting is an Open Question the operator leaves unresolved,
// but the hook exists so a future policy can adjust difficulty without
// touching the dispatcher.
func (r *ProverRegistry) Retarget(address string, difficulty uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.provers[address]; ok {
		p.ShareDifficulty = difficulty
	}
}

// Get returns the prover's entry and whether it is registered.
func (r *ProverRegistry) Get(address string) (Prover, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.provers[address]
	if !ok {
		return Prover{}, false
	}
	return *p, true
}

// Count returns the number of registered provers.
func (r *ProverRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.provers)
}

// All returns a snapshot of every registered prover.
func (r *ProverRegistry) All() []Prover {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Prover, 0, len(r.provers))
	for _, p := range r.provers {
		out = append(out, *p)
	}
	return out
}
