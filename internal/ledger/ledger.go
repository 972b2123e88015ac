// Package ledger implements the share ledger: the durable record of which
// prover credited how many shares toward which (height, coinbase_record)
// round. It is the only component permitted to write share accounting state;
// everything else reads through it.
package ledger

import (
	"github.com/tos-network/tos-pool/internal/storage"
)

// ShareLedger durably accounts credited shares per round and per prover.
type ShareLedger struct {
	store *storage.ShareStore
}

// New wraps a share store as a ShareLedger.
func New(store *storage.ShareStore) *ShareLedger {
	return &ShareLedger{store: store}
}

// IncrementShare credits one share to prover for the (height, coinbase)
// round. Called once per accepted PoolResponse, after the prover's proof has
// been verified against its assigned share difficulty.
func (l *ShareLedger) IncrementShare(height uint64, coinbase, prover string) error {
	return l.store.IncrementShare(height, coinbase, prover)
}

// SharesForBlock returns the credited share counts for one round, the input
// a payout computation (out of scope here) would use to split a reward.
func (l *ShareLedger) SharesForBlock(height uint64, coinbase string) (map[string]uint64, error) {
	return l.store.SharesForBlock(height, coinbase)
}

// SharesForProver aggregates one prover's credited shares across every round
// this operator has recorded.
func (l *ShareLedger) SharesForProver(prover string) (uint64, error) {
	return l.store.SharesForProver(prover)
}

// Round is one (height, coinbase) round and its credited shares.
type Round struct {
	Height   uint64
	Coinbase string
	Shares   map[string]uint64
}

// AllShares returns every round this operator has ever recorded.
func (l *ShareLedger) AllShares() ([]Round, error) {
	rounds, err := l.store.AllShares()
	if err != nil {
		return nil, err
	}
	out := make([]Round, len(rounds))
	for i, r := range rounds {
		out[i] = Round{Height: r.Height, Coinbase: r.Coinbase, Shares: r.Shares}
	}
	return out, nil
}

// Provers returns every distinct prover this operator has ever credited.
func (l *ShareLedger) Provers() ([]string, error) {
	return l.store.Provers()
}
