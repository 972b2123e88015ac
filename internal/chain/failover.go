package chain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tos-network/tos-pool/internal/util"
)

// endpoint wraps a single Client with health tracking.
type endpoint struct {
	client  *Client
	name    string
	url     string

	mu      sync.RWMutex
	healthy bool
}

// FailoverClient fronts one logical ledger reader with several daemon
// endpoints, picking the first healthy one and moving on when a call fails.
// The ledger reader remains one collaborator from the operator's point of
// view; this only adds availability underneath it.
type FailoverClient struct {
	endpoints []*endpoint
	activeIdx int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// EndpointConfig names one daemon URL in a failover group.
type EndpointConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// NewFailoverClient builds a failover-capable ledger client from a set of
// daemon endpoints, all speaking for the same recipient/coinbase identity.
func NewFailoverClient(ctx context.Context, recipient string, configs []EndpointConfig) *FailoverClient {
	fctx, cancel := context.WithCancel(ctx)
	fc := &FailoverClient{ctx: fctx, cancel: cancel}
	for _, c := range configs {
		fc.endpoints = append(fc.endpoints, &endpoint{
			client:  NewClient(c.URL, c.Timeout, recipient),
			name:    c.Name,
			url:     c.URL,
			healthy: true,
		})
	}
	return fc
}

// Start begins the background health-check loop.
func (fc *FailoverClient) Start() {
	if len(fc.endpoints) == 0 {
		util.Warn("chain: no endpoints configured")
		return
	}
	fc.wg.Add(1)
	go fc.healthCheckLoop()
}

// Stop cancels the health-check loop and waits for it to exit.
func (fc *FailoverClient) Stop() {
	fc.cancel()
	fc.wg.Wait()
}

func (fc *FailoverClient) healthCheckLoop() {
	defer fc.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-fc.ctx.Done():
			return
		case <-ticker.C:
			fc.checkAll()
		}
	}
}

func (fc *FailoverClient) checkAll() {
	for i, ep := range fc.endpoints {
		_, err := ep.client.LatestBlockHeight(fc.ctx)
		ep.mu.Lock()
		ep.healthy = err == nil
		ep.mu.Unlock()
		if err != nil {
			util.Warnf("chain endpoint %s unhealthy: %v", ep.name, err)
		}
		if err == nil && atomic.LoadInt32(&fc.activeIdx) != int32(i) {
			// Prefer restoring an earlier, healthy endpoint once it recovers.
			if i < int(atomic.LoadInt32(&fc.activeIdx)) {
				atomic.StoreInt32(&fc.activeIdx, int32(i))
			}
		}
	}
}

// active returns the current endpoint, advancing past unhealthy ones.
func (fc *FailoverClient) active() (*Client, error) {
	start := int(atomic.LoadInt32(&fc.activeIdx))
	for i := 0; i < len(fc.endpoints); i++ {
		idx := (start + i) % len(fc.endpoints)
		ep := fc.endpoints[idx]
		ep.mu.RLock()
		healthy := ep.healthy
		ep.mu.RUnlock()
		if healthy {
			atomic.StoreInt32(&fc.activeIdx, int32(idx))
			return ep.client, nil
		}
	}
	if len(fc.endpoints) == 0 {
		return nil, fmt.Errorf("chain: no endpoints configured")
	}
	// Nothing reports healthy; try the nominal active endpoint anyway.
	return fc.endpoints[start%len(fc.endpoints)].client, nil
}

func (fc *FailoverClient) markFailure(c *Client) {
	for _, ep := range fc.endpoints {
		if ep.client == c {
			ep.mu.Lock()
			ep.healthy = false
			ep.mu.Unlock()
			return
		}
	}
}

// LatestBlockHeight implements LedgerReader.
func (fc *FailoverClient) LatestBlockHeight(ctx context.Context) (uint64, error) {
	c, err := fc.active()
	if err != nil {
		return 0, err
	}
	height, err := c.LatestBlockHeight(ctx)
	if err != nil {
		fc.markFailure(c)
	}
	return height, err
}

// BuildTemplate implements LedgerReader.
func (fc *FailoverClient) BuildTemplate(ctx context.Context, recipient string, coinbaseIsPublic bool, transactions []Transaction) (*BlockTemplate, error) {
	c, err := fc.active()
	if err != nil {
		return nil, err
	}
	tmpl, err := c.BuildTemplate(ctx, recipient, coinbaseIsPublic, transactions)
	if err != nil {
		fc.markFailure(c)
	}
	return tmpl, err
}

// InvalidateCoinbaseCache implements LedgerReader.
func (fc *FailoverClient) InvalidateCoinbaseCache(ctx context.Context) error {
	c, err := fc.active()
	if err != nil {
		return err
	}
	if err := c.InvalidateCoinbaseCache(ctx); err != nil {
		fc.markFailure(c)
		return err
	}
	return nil
}

// Transactions implements MemoryPool.
func (fc *FailoverClient) Transactions(ctx context.Context) ([]Transaction, error) {
	c, err := fc.active()
	if err != nil {
		return nil, err
	}
	txs, err := c.Transactions(ctx)
	if err != nil {
		fc.markFailure(c)
	}
	return txs, err
}

// SubmitUnconfirmedBlock implements LedgerRouter.
func (fc *FailoverClient) SubmitUnconfirmedBlock(ctx context.Context, localIP string, block *Block) error {
	c, err := fc.active()
	if err != nil {
		return err
	}
	if err := c.SubmitUnconfirmedBlock(ctx, localIP, block); err != nil {
		fc.markFailure(c)
		return err
	}
	return nil
}
