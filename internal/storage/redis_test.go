package storage

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) (*ShareStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	store, err := NewShareStore(mr.Addr(), "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("failed to create share store: %v", err)
	}

	return store, mr
}

func TestNewShareStoreInvalid(t *testing.T) {
	_, err := NewShareStore("invalid:9999", "", 0)
	if err == nil {
		t.Error("NewShareStore should return error for an unreachable address")
	}
}

func TestIncrementShare(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	if err := store.IncrementShare(100, "coinbase-a", "prover-1"); err != nil {
		t.Fatalf("IncrementShare() error = %v", err)
	}
	if err := store.IncrementShare(100, "coinbase-a", "prover-1"); err != nil {
		t.Fatalf("IncrementShare() error = %v", err)
	}
	if err := store.IncrementShare(100, "coinbase-a", "prover-2"); err != nil {
		t.Fatalf("IncrementShare() error = %v", err)
	}

	shares, err := store.SharesForBlock(100, "coinbase-a")
	if err != nil {
		t.Fatalf("SharesForBlock() error = %v", err)
	}
	if shares["prover-1"] != 2 {
		t.Errorf("prover-1 shares = %d, want 2", shares["prover-1"])
	}
	if shares["prover-2"] != 1 {
		t.Errorf("prover-2 shares = %d, want 1", shares["prover-2"])
	}
}

func TestSharesForProverAggregatesAcrossRounds(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	store.IncrementShare(100, "coinbase-a", "prover-1")
	store.IncrementShare(101, "coinbase-b", "prover-1")
	store.IncrementShare(101, "coinbase-b", "prover-1")

	total, err := store.SharesForProver("prover-1")
	if err != nil {
		t.Fatalf("SharesForProver() error = %v", err)
	}
	if total != 3 {
		t.Errorf("SharesForProver() = %d, want 3", total)
	}
}

func TestSharesForProverUnknown(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	total, err := store.SharesForProver("nobody")
	if err != nil {
		t.Fatalf("SharesForProver() error = %v", err)
	}
	if total != 0 {
		t.Errorf("SharesForProver() = %d, want 0", total)
	}
}

func TestAllSharesAndProvers(t *testing.T) {
	store, mr := setupTestStore(t)
	defer mr.Close()
	defer store.Close()

	store.IncrementShare(100, "coinbase-a", "prover-1")
	store.IncrementShare(200, "coinbase-b", "prover-2")

	rounds, err := store.AllShares()
	if err != nil {
		t.Fatalf("AllShares() error = %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("AllShares() returned %d rounds, want 2", len(rounds))
	}

	provers, err := store.Provers()
	if err != nil {
		t.Fatalf("Provers() error = %v", err)
	}
	if len(provers) != 2 {
		t.Errorf("Provers() returned %d provers, want 2", len(provers))
	}
}
