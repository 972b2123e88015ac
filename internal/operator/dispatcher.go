// Package operator implements the RequestDispatcher and OutboundGateway: the
// single logical consumer that drains the inbound request queue and the thin
// adapter that routes outbound messages to peers and the ledger.
package operator

import (
	"context"
	"fmt"
	"sync"

	"github.com/tos-network/tos-pool/internal/chain"
	"github.com/tos-network/tos-pool/internal/ledger"
	"github.com/tos-network/tos-pool/internal/posw"
	"github.com/tos-network/tos-pool/internal/registry"
	"github.com/tos-network/tos-pool/internal/template"
	"github.com/tos-network/tos-pool/internal/util"
)

// QueueCapacity bounds the inbound request queue. Producers must backpressure
// once it is full; the peer layer decides whether to drop or wait.
const QueueCapacity = 1024

// Request is one of the three inbound request kinds the dispatcher accepts.
type Request interface {
	isRequest()
}

// PoolRegister is sent when a prover first announces itself to this operator.
type PoolRegister struct {
	PeerIP string
	Prover string
}

func (PoolRegister) isRequest() {}

// PoolResponse is a submitted PoSW proof for the current template.
type PoolResponse struct {
	PeerIP string
	Prover string
	Nonce  chain.Nonce
	Proof  chain.Proof
}

func (PoolResponse) isRequest() {}

// PoolBlock reports a block found out-of-band, with no share accounting.
type PoolBlock struct {
	Nonce chain.Nonce
	Proof chain.Proof
}

func (PoolBlock) isRequest() {}

// Dispatcher is the serialized handler for the three inbound request kinds.
// It is the only component that mutates state across TemplateCache,
// ProverRegistry, and ShareLedger.
type Dispatcher struct {
	cache        *template.Cache
	registry     *registry.ProverRegistry
	ledger       *ledger.ShareLedger
	gateway      *Gateway
	ledgerReader chain.LedgerReader
	localIP      string

	networkDifficulty uint64

	requests chan Request
	workers  chan struct{} // bounded CPU-offload pool, sized by capacity

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config carries the dispatcher's fixed dependencies and tunables.
type Config struct {
	Cache             *template.Cache
	Registry          *registry.ProverRegistry
	Ledger            *ledger.ShareLedger
	Gateway           *Gateway
	LedgerReader      chain.LedgerReader
	LocalIP           string
	NetworkDifficulty uint64
	WorkerPoolSize    int
}

// New builds a dispatcher from its collaborators. WorkerPoolSize is the
// number of worker slots that proof verification and block assembly acquire;
// it defaults to 4 if zero. Both run on the dispatcher's own goroutine, so
// with the single consumer loop at most one of them is in flight at a time.
func New(cfg Config) *Dispatcher {
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Dispatcher{
		cache:             cfg.Cache,
		registry:          cfg.Registry,
		ledger:            cfg.Ledger,
		gateway:           cfg.Gateway,
		ledgerReader:      cfg.LedgerReader,
		localIP:           cfg.LocalIP,
		networkDifficulty: cfg.NetworkDifficulty,
		requests:          make(chan Request, QueueCapacity),
		workers:           make(chan struct{}, poolSize),
	}
}

// Requests returns the channel peer listeners enqueue onto. Enqueue blocks
// once the queue is full; callers that must not block should select against
// this channel with a default case.
func (d *Dispatcher) Requests() chan<- Request {
	return d.requests
}

// Start begins draining the request queue on a single goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	dctx, cancel := context.WithCancel(ctx)
	d.ctx = dctx
	d.cancel = cancel

	d.wg.Add(1)
	go d.loop()
}

// Stop cancels the consumer loop and waits for it to drain in flight work.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case req := <-d.requests:
			d.process(req)
		}
	}
}

// process handles exactly one request to completion before the loop reads
// the next, per the single-threaded cooperative dispatcher model. CPU-bound
// sub-steps (proof verification, block assembly) run inline on this
// goroutine, so requests are handled in FIFO order and one verification runs
// at a time; producers can keep enqueueing onto the buffered queue meanwhile.
func (d *Dispatcher) process(req Request) {
	switch r := req.(type) {
	case PoolRegister:
		d.handleRegister(r)
	case PoolResponse:
		d.handleResponse(r)
	case PoolBlock:
		d.handleBlock(r)
	default:
		util.Warnf("operator: unknown request type %T", req)
	}
}

func (d *Dispatcher) handleRegister(r PoolRegister) {
	snap := d.cache.Snapshot()
	if snap.Template == nil {
		util.Warnf("operator: PoolRegister from %s before any template exists", r.PeerIP)
		return
	}

	prover := d.registry.Ensure(r.Prover)

	if err := d.gateway.SendTo(r.PeerIP, PoolRequestMessage{
		Difficulty: prover.ShareDifficulty,
		Template:   snap.Template,
	}); err != nil {
		util.Warnf("operator: send PoolRequest to %s: %v", r.PeerIP, err)
	}
}

func (d *Dispatcher) handleResponse(r PoolResponse) {
	snap := d.cache.Snapshot()
	if snap.Template == nil {
		util.Warnf("operator: PoolResponse from %s before any template exists", r.PeerIP)
		return
	}

	if !d.cache.ObserveNonce(snap.Generation, r.Nonce) {
		util.Warnf("operator: duplicate nonce from %s, prover %s", r.PeerIP, r.Prover)
		return
	}

	d.registry.Ensure(r.Prover)
	difficulty := d.registry.DifficultyOf(r.Prover)

	if !d.verify(snap.Template.Height, difficulty, snap.Template.HeaderRoot, r.Nonce, r.Proof) {
		util.Warnf("operator: invalid proof from prover %s at height %d", r.Prover, snap.Template.Height)
		return
	}

	d.registry.Touch(r.Prover)

	if err := d.ledger.IncrementShare(snap.Template.Height, snap.Template.CoinbaseRecord, r.Prover); err != nil {
		util.Errorf("operator: increment_share failed for prover %s: %v", r.Prover, err)
		// The proof is still valid and may independently be a network
		// block; continue to block assembly regardless.
	}

	d.tryAssembleAndSubmit(snap.Template, r.Nonce, r.Proof)
}

func (d *Dispatcher) handleBlock(r PoolBlock) {
	snap := d.cache.Snapshot()
	if snap.Template == nil {
		util.Warnf("operator: PoolBlock before any template exists")
		return
	}
	d.tryAssembleAndSubmit(snap.Template, r.Nonce, r.Proof)
}

// verify runs PoSW verification on the calling goroutine while holding a
// worker slot. The request queue stays open to producers while it runs.
func (d *Dispatcher) verify(height uint64, difficulty uint64, headerRoot [32]byte, nonce chain.Nonce, proof chain.Proof) bool {
	d.workers <- struct{}{}
	defer func() { <-d.workers }()
	return posw.Verify(height, difficulty, headerRoot, nonce, proof)
}

func (d *Dispatcher) tryAssembleAndSubmit(tmpl *chain.BlockTemplate, nonce chain.Nonce, proof chain.Proof) {
	d.workers <- struct{}{}
	block, ok := posw.TryAssembleBlock(tmpl, nonce, proof, d.networkDifficulty)
	<-d.workers
	if !ok {
		return
	}

	util.Infof("operator: assembled block at height %d, submitting", block.Height)

	if d.ledgerReader != nil {
		if err := d.ledgerReader.InvalidateCoinbaseCache(d.ctx); err != nil {
			util.Warnf("operator: invalidate_coinbase_cache failed: %v", err)
		}
	}

	if err := d.gateway.SubmitUnconfirmedBlock(d.ctx, d.localIP, block); err != nil {
		util.Warnf("operator: submit_unconfirmed_block failed: %v", err)
	}
}

var errQueueFull = fmt.Errorf("operator: request queue is full")

// TryEnqueue attempts a non-blocking enqueue, returning errQueueFull if the
// bounded queue has no room. Peer listeners that must not block use this.
func (d *Dispatcher) TryEnqueue(req Request) error {
	select {
	case d.requests <- req:
		return nil
	default:
		return errQueueFull
	}
}
