package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tos-network/tos-pool/internal/util"
)

// rpcRequest is a JSON-RPC 2.0 request with object params, matching the
// native daemon API this operator's ledger speaks.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// getBlockTemplateResult mirrors the daemon's get_block_template response.
type getBlockTemplateResult struct {
	Height             uint64 `json:"height"`
	PreviousBlockHash  string `json:"previous_block_hash"`
	PreviousLedgerRoot string `json:"previous_ledger_root"`
	HeaderRoot         string `json:"header_root"`
	CoinbaseRecord     string `json:"coinbase_record"`
	Timestamp          int64  `json:"timestamp"`
}

type getInfoResult struct {
	Height uint64 `json:"height"`
}

// Client is a JSON-RPC client for the ledger's native daemon API. It
// implements LedgerReader, MemoryPool, and LedgerRouter against a single
// endpoint.
type Client struct {
	url       string
	recipient string
	http      *http.Client
	requestID uint64
}

// NewClient creates a ledger client against a single daemon endpoint.
func NewClient(url string, timeout time.Duration, recipient string) *Client {
	return &Client{
		url:       url,
		recipient: recipient,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) rpcURL() string {
	url := strings.TrimSuffix(c.url, "/")
	if !strings.HasSuffix(url, "/json_rpc") {
		url += "/json_rpc"
	}
	return url
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := atomic.AddUint64(&c.requestID, 1)
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chain rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chain rpc %s: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("chain rpc %s: decode: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("chain rpc %s: %w", method, rpcResp.Error)
	}
	return rpcResp.Result, nil
}

// LatestBlockHeight implements LedgerReader.
func (c *Client) LatestBlockHeight(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "get_info", nil)
	if err != nil {
		return 0, err
	}
	var result getInfoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("get_info: decode: %w", err)
	}
	return result.Height, nil
}

// BuildTemplate implements LedgerReader. It is CPU/IO-bound and is always
// invoked by the caller off the dispatcher's own goroutine.
func (c *Client) BuildTemplate(ctx context.Context, recipient string, coinbaseIsPublic bool, transactions []Transaction) (*BlockTemplate, error) {
	params := map[string]interface{}{
		"recipient":          recipient,
		"coinbase_is_public": coinbaseIsPublic,
		"transaction_count":  len(transactions),
	}
	raw, err := c.call(ctx, "get_block_template", params)
	if err != nil {
		return nil, err
	}
	var result getBlockTemplateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("get_block_template: decode: %w", err)
	}

	tmpl := &BlockTemplate{
		Height:         result.Height,
		CoinbaseRecord: result.CoinbaseRecord,
		Transactions:   transactions,
		Timestamp:      result.Timestamp,
	}
	if b, err := util.HexToBytes(result.PreviousBlockHash); err == nil && len(b) == 32 {
		copy(tmpl.PreviousBlockHash[:], b)
	}
	if b, err := util.HexToBytes(result.PreviousLedgerRoot); err == nil && len(b) == 32 {
		copy(tmpl.PreviousLedgerRoot[:], b)
	}
	if b, err := util.HexToBytes(result.HeaderRoot); err == nil && len(b) == 32 {
		copy(tmpl.HeaderRoot[:], b)
	}
	return tmpl, nil
}

// InvalidateCoinbaseCache implements LedgerReader.
func (c *Client) InvalidateCoinbaseCache(ctx context.Context) error {
	_, err := c.call(ctx, "invalidate_coinbase_cache", nil)
	return err
}

// Transactions implements MemoryPool by asking the daemon for its current
// mempool contents.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	raw, err := c.call(ctx, "get_mempool", nil)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("get_mempool: decode: %w", err)
	}
	txs := make([]Transaction, len(ids))
	for i, id := range ids {
		txs[i] = Transaction{ID: id}
	}
	return txs, nil
}

// SubmitUnconfirmedBlock implements LedgerRouter.
func (c *Client) SubmitUnconfirmedBlock(ctx context.Context, localIP string, block *Block) error {
	params := map[string]interface{}{
		"local_ip":   localIP,
		"height":     block.Height,
		"hash":       util.BytesToHexNoPre(block.Hash[:]),
		"nonce":      uint64(block.Header.Nonce),
		"proof":      util.BytesToHexNoPre(block.Header.Proof),
		"timestamp":  block.Header.Timestamp,
	}
	_, err := c.call(ctx, "submit_block", params)
	return err
}
