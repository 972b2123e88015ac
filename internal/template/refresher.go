package template

import (
	"context"
	"sync"
	"time"

	"github.com/tos-network/tos-pool/internal/chain"
	"github.com/tos-network/tos-pool/internal/util"
)

// HeartbeatInterval is how often the refresher checks the ledger tip for
// staleness, mirroring the operator's own heartbeat cadence.
const HeartbeatInterval = 100 * time.Millisecond

// Broadcaster delivers a freshly rotated template to every pool-connected
// peer. Satisfied by operator.Gateway; kept narrow here so internal/template
// never needs to import internal/operator.
type Broadcaster interface {
	BroadcastTemplate(tmpl *chain.BlockTemplate) error
}

// Refresher rebuilds the block template from the ledger's tip and current
// mempool whenever the tip has advanced past the cached template, and
// rotates it into the Cache. It refuses to start
// without an operator recipient address: an operator with nowhere to send
// the coinbase has nothing useful to refresh.
type Refresher struct {
	cache       *Cache
	ledger      chain.LedgerReader
	mempool     chain.MemoryPool
	broadcaster Broadcaster
	recipient   string
	isPublic    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher builds a refresher targeting cache, reading from ledger and
// mempool, requesting templates paid to recipient, and broadcasting every
// rotation through broadcaster. broadcaster may be nil in tests that don't
// care about the outbound announcement.
func NewRefresher(cache *Cache, ledger chain.LedgerReader, mempool chain.MemoryPool, broadcaster Broadcaster, recipient string, coinbaseIsPublic bool) *Refresher {
	return &Refresher{
		cache:       cache,
		ledger:      ledger,
		mempool:     mempool,
		broadcaster: broadcaster,
		recipient:   recipient,
		isPublic:    coinbaseIsPublic,
	}
}

// Start begins the heartbeat loop. Returns an error without starting if no
// recipient address was configured.
func (r *Refresher) Start(ctx context.Context) error {
	if r.recipient == "" {
		return errNoRecipient
	}

	rctx, cancel := context.WithCancel(ctx)
	r.ctx = rctx
	r.cancel = cancel

	if err := r.refresh(); err != nil {
		util.Warnf("template: initial refresh failed: %v", err)
	}

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop cancels the heartbeat loop and waits for it to exit.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Refresher) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.refresh(); err != nil {
				util.Warnf("template: refresh failed: %v", err)
			}
		}
	}
}

func (r *Refresher) refresh() error {
	tip, err := r.ledger.LatestBlockHeight(r.ctx)
	if err != nil {
		return err
	}

	prev := r.cache.Snapshot()
	if prev.Template != nil && prev.Template.Height == tip+1 {
		// The ledger tip hasn't advanced since the last rotation. Rebuilding
		// now would only pick up mempool churn: HeaderRoot would change with
		// the tip unchanged, forcing a rotation that clears known_nonces and
		// resets every connected prover for no reason. Staleness is derived
		// from the ledger tip only.
		return nil
	}

	txs, err := r.mempool.Transactions(r.ctx)
	if err != nil {
		return err
	}

	tmpl, err := r.ledger.BuildTemplate(r.ctx, r.recipient, r.isPublic, txs)
	if err != nil {
		return err
	}

	r.cache.Rotate(tmpl)

	if r.broadcaster != nil {
		if err := r.broadcaster.BroadcastTemplate(tmpl); err != nil {
			util.Warnf("template: broadcast after rotation failed: %v", err)
		}
	}

	return nil
}

type refresherError string

func (e refresherError) Error() string { return string(e) }

const errNoRecipient = refresherError("template: refresher requires an operator recipient address")
