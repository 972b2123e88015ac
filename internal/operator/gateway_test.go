package operator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/tos-network/tos-pool/internal/chain"
)

type fakePeer struct {
	addr       string
	requests   []PoolRequestMessage
	broadcasts []NewBlockTemplateMessage
	sendErr    error
}

func (p *fakePeer) Addr() string { return p.addr }

func (p *fakePeer) SendPoolRequest(msg PoolRequestMessage) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.requests = append(p.requests, msg)
	return nil
}

func (p *fakePeer) SendNewBlockTemplate(msg NewBlockTemplateMessage) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.broadcasts = append(p.broadcasts, msg)
	return nil
}

// fakeLedgerRouter implements chain.LedgerRouter and chain.LedgerReader so it
// can stand in for both the gateway's submission path and the dispatcher's
// coinbase-cache invalidation path in tests.
type fakeLedgerRouter struct {
	blocks          []*chain.Block
	localIPs        []string
	invalidateCalls int32
	invalidateErr   error
}

func (r *fakeLedgerRouter) SubmitUnconfirmedBlock(ctx context.Context, localIP string, block *chain.Block) error {
	r.blocks = append(r.blocks, block)
	r.localIPs = append(r.localIPs, localIP)
	return nil
}

func (r *fakeLedgerRouter) LatestBlockHeight(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (r *fakeLedgerRouter) BuildTemplate(ctx context.Context, recipient string, coinbaseIsPublic bool, transactions []chain.Transaction) (*chain.BlockTemplate, error) {
	return &chain.BlockTemplate{}, nil
}

func (r *fakeLedgerRouter) InvalidateCoinbaseCache(ctx context.Context) error {
	atomic.AddInt32(&r.invalidateCalls, 1)
	return r.invalidateErr
}

func TestGatewaySendToUnregisteredPeer(t *testing.T) {
	g := NewGateway(&fakeLedgerRouter{})
	if err := g.SendTo("1.2.3.4:9000", PoolRequestMessage{}); err == nil {
		t.Error("expected error sending to an unregistered peer")
	}
}

func TestGatewaySendToRegisteredPeer(t *testing.T) {
	g := NewGateway(&fakeLedgerRouter{})
	peer := &fakePeer{addr: "1.2.3.4:9000"}
	g.Register(peer)

	if err := g.SendTo(peer.addr, PoolRequestMessage{Difficulty: 42}); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if len(peer.requests) != 1 || peer.requests[0].Difficulty != 42 {
		t.Errorf("peer did not receive expected PoolRequest: %+v", peer.requests)
	}
}

func TestGatewayBroadcastReachesAllRegisteredPeers(t *testing.T) {
	g := NewGateway(&fakeLedgerRouter{})
	p1 := &fakePeer{addr: "peer-1"}
	p2 := &fakePeer{addr: "peer-2"}
	g.Register(p1)
	g.Register(p2)

	if err := g.BroadcastPool(NewBlockTemplateMessage{Template: &chain.BlockTemplate{Height: 100}}); err != nil {
		t.Fatalf("BroadcastPool() error = %v", err)
	}
	if len(p1.broadcasts) != 1 || len(p2.broadcasts) != 1 {
		t.Errorf("expected both peers to receive the broadcast, got p1=%d p2=%d", len(p1.broadcasts), len(p2.broadcasts))
	}
}

func TestGatewayBroadcastTemplateReachesAllRegisteredPeers(t *testing.T) {
	g := NewGateway(&fakeLedgerRouter{})
	p1 := &fakePeer{addr: "peer-1"}
	g.Register(p1)

	tmpl := &chain.BlockTemplate{Height: 42}
	if err := g.BroadcastTemplate(tmpl); err != nil {
		t.Fatalf("BroadcastTemplate() error = %v", err)
	}
	if len(p1.broadcasts) != 1 || p1.broadcasts[0].Template.Height != 42 {
		t.Errorf("peer did not receive expected template broadcast: %+v", p1.broadcasts)
	}
}

func TestGatewayUnregisterRemovesFromBroadcast(t *testing.T) {
	g := NewGateway(&fakeLedgerRouter{})
	p1 := &fakePeer{addr: "peer-1"}
	g.Register(p1)
	g.Unregister(p1.addr)

	if g.PeerCount() != 0 {
		t.Errorf("PeerCount() = %d, want 0 after unregister", g.PeerCount())
	}
}

func TestGatewaySubmitUnconfirmedBlock(t *testing.T) {
	router := &fakeLedgerRouter{}
	g := NewGateway(router)

	block := &chain.Block{Height: 7}
	if err := g.SubmitUnconfirmedBlock(context.Background(), "127.0.0.1", block); err != nil {
		t.Fatalf("SubmitUnconfirmedBlock() error = %v", err)
	}
	if len(router.blocks) != 1 || router.blocks[0].Height != 7 {
		t.Errorf("router did not receive expected block: %+v", router.blocks)
	}
}
