package operator

import (
	"context"
	"fmt"
	"sync"

	"github.com/tos-network/tos-pool/internal/chain"
)

// PoolRequestMessage carries a fresh share-difficulty target and the
// template a prover should search against.
type PoolRequestMessage struct {
	Difficulty uint64
	Template   *chain.BlockTemplate
}

// NewBlockTemplateMessage announces a fresh template rotation to every
// pool-connected peer, carrying the full template so the peer transport can
// translate it into a wire-level job without a round trip back to the cache.
type NewBlockTemplateMessage struct {
	Template *chain.BlockTemplate
}

// Peer is one pool-connected prover the gateway can address directly or
// include in a broadcast. Implemented by the peer transport (Stratum,
// WebSocket); registered with the gateway when a prover authorizes.
type Peer interface {
	Addr() string
	SendPoolRequest(PoolRequestMessage) error
	SendNewBlockTemplate(NewBlockTemplateMessage) error
}

// Gateway is the thin adapter that routes outbound messages to peers and to
// the ledger. All sends are fire-and-forget from the dispatcher's
// perspective; failures are returned to the caller to log, never retried
// here.
type Gateway struct {
	ledgerRouter chain.LedgerRouter

	mu    sync.RWMutex
	peers map[string]Peer // addr -> peer, scoped to this process's lifetime
}

// NewGateway builds a gateway that submits blocks through router.
func NewGateway(router chain.LedgerRouter) *Gateway {
	return &Gateway{
		ledgerRouter: router,
		peers:        make(map[string]Peer),
	}
}

// Register adds a peer that has registered to this pool in the current
// process lifetime, making it a broadcast target.
func (g *Gateway) Register(p Peer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.peers[p.Addr()] = p
}

// Unregister removes a peer, typically on disconnect.
func (g *Gateway) Unregister(addr string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.peers, addr)
}

// SendTo delivers msg to exactly the peer at addr.
func (g *Gateway) SendTo(addr string, msg PoolRequestMessage) error {
	g.mu.RLock()
	peer, ok := g.peers[addr]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("operator: no registered peer at %s", addr)
	}
	return peer.SendPoolRequest(msg)
}

// BroadcastPool delivers msg to exactly the peers that have registered to
// this pool in the current process lifetime.
func (g *Gateway) BroadcastPool(msg NewBlockTemplateMessage) error {
	g.mu.RLock()
	peers := make([]Peer, 0, len(g.peers))
	for _, p := range g.peers {
		peers = append(peers, p)
	}
	g.mu.RUnlock()

	var firstErr error
	for _, p := range peers {
		if err := p.SendNewBlockTemplate(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BroadcastTemplate announces tmpl to every registered peer. It satisfies
// template.Broadcaster structurally so the refresher can reach the gateway
// without internal/template importing internal/operator.
func (g *Gateway) BroadcastTemplate(tmpl *chain.BlockTemplate) error {
	return g.BroadcastPool(NewBlockTemplateMessage{Template: tmpl})
}

// SubmitUnconfirmedBlock forwards a mined block to the ledger router.
func (g *Gateway) SubmitUnconfirmedBlock(ctx context.Context, localIP string, block *chain.Block) error {
	return g.ledgerRouter.SubmitUnconfirmedBlock(ctx, localIP, block)
}

// PeerCount reports how many peers are currently registered.
func (g *Gateway) PeerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.peers)
}
