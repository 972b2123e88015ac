// Package chain defines the value types and collaborator interfaces the
// operator consumes from the ledger: block templates, transactions, and the
// assembled blocks it may promote for broadcast.
package chain

import (
	"context"

	"github.com/zeebo/blake3"
)

// Nonce is the PoSW nonce a prover searches for.
type Nonce uint64

// Proof is an opaque, serialized PoSW proof.
type Proof []byte

// Transaction is a candidate transaction committed into a block template.
type Transaction struct {
	ID  string
	Raw []byte
}

// BlockTemplate is the header skeleton plus committed transactions and
// coinbase over which provers search for nonces. Never mutated in place;
// TemplateRefresher always builds a fresh value and rotates it into the cache.
type BlockTemplate struct {
	Height             uint64
	PreviousBlockHash  [32]byte
	PreviousLedgerRoot [32]byte
	HeaderRoot         [32]byte
	CoinbaseRecord     string
	Transactions       []Transaction
	Timestamp          int64
}

// TransactionsRoot folds the committed transaction IDs into a single digest.
func (t *BlockTemplate) TransactionsRoot() [32]byte {
	hasher := blake3.New()
	for _, tx := range t.Transactions {
		hasher.Write([]byte(tx.ID))
	}
	var root [32]byte
	copy(root[:], hasher.Sum(nil))
	return root
}

// BlockHeader is the header of an assembled block: the template's skeleton
// plus the winning nonce and proof.
type BlockHeader struct {
	PreviousLedgerRoot [32]byte
	TransactionsRoot   [32]byte
	Height             uint64
	Timestamp          int64
	Nonce              Nonce
	Proof              Proof
}

// Block is a full block ready for broadcast as an UnconfirmedBlock.
type Block struct {
	Height            uint64
	Hash              [32]byte
	PreviousBlockHash [32]byte
	Header            BlockHeader
	Transactions      []Transaction
}

// LedgerReader supplies the ledger tip, template construction, and coinbase
// cache invalidation. Consumed only through this interface; the operator
// never reaches into ledger internals.
type LedgerReader interface {
	LatestBlockHeight(ctx context.Context) (uint64, error)
	BuildTemplate(ctx context.Context, recipient string, coinbaseIsPublic bool, transactions []Transaction) (*BlockTemplate, error)
	InvalidateCoinbaseCache(ctx context.Context) error
}

// MemoryPool supplies the current candidate transaction set.
type MemoryPool interface {
	Transactions(ctx context.Context) ([]Transaction, error)
}

// LedgerRouter accepts a mined block for broadcast to the ledger layer.
type LedgerRouter interface {
	SubmitUnconfirmedBlock(ctx context.Context, localIP string, block *Block) error
}
