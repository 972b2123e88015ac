package registry

import (
	"testing"

	"github.com/tos-network/tos-pool/internal/posw"
)

func TestEnsureCreatesAtBaseDifficulty(t *testing.T) {
	r := New()
	p := r.Ensure("prover-1")
	if p.ShareDifficulty != posw.BaseShareDifficulty {
		t.Errorf("ShareDifficulty = %d, want %d", p.ShareDifficulty, posw.BaseShareDifficulty)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	r := New()
	r.Ensure("prover-1")
	r.Retarget("prover-1", 12345)
	r.Ensure("prover-1")

	p, ok := r.Get("prover-1")
	if !ok {
		t.Fatal("expected prover-1 to be registered")
	}
	if p.ShareDifficulty != 12345 {
		t.Errorf("re-Ensure reset difficulty, got %d, want 12345", p.ShareDifficulty)
	}
}

func TestDifficultyOfUnknownProver(t *testing.T) {
	r := New()
	if d := r.DifficultyOf("nobody"); d != posw.BaseShareDifficulty {
		t.Errorf("DifficultyOf(unknown) = %d, want %d", d, posw.BaseShareDifficulty)
	}
}

func TestTouchUnknownProverIsNoop(t *testing.T) {
	r := New()
	r.Touch("nobody")
	if r.Count() != 0 {
		t.Errorf("Touch on unknown prover should not register it, Count() = %d", r.Count())
	}
}

func TestAllReturnsSnapshot(t *testing.T) {
	r := New()
	r.Ensure("prover-1")
	r.Ensure("prover-2")

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d provers, want 2", len(all))
	}
}
