package peer

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tos-network/tos-pool/internal/chain"
	"github.com/tos-network/tos-pool/internal/operator"
	"github.com/tos-network/tos-pool/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConfig configures the listener.
type WebSocketConfig struct {
	Bind string
}

// WebSocketServer is an alternative prover transport to Stratum, translating
// the same PoolRegister/PoolResponse requests over a WebSocket connection.
type WebSocketServer struct {
	cfg        WebSocketConfig
	dispatcher *operator.Dispatcher
	gateway    *operator.Gateway

	server    *http.Server
	clients   sync.Map // clientID -> *wsClient
	clientSeq uint64

	quit chan struct{}
	wg   sync.WaitGroup
}

type wsClient struct {
	id         uint64
	conn       *websocket.Conn
	address    string
	authorized bool

	writeMu sync.Mutex
}

// NewWebSocketServer builds a WebSocket listener that enqueues requests onto
// dispatcher and registers clients with gateway.
func NewWebSocketServer(cfg WebSocketConfig, dispatcher *operator.Dispatcher, gateway *operator.Gateway) *WebSocketServer {
	return &WebSocketServer{
		cfg:        cfg,
		dispatcher: dispatcher,
		gateway:    gateway,
		quit:       make(chan struct{}),
	}
}

// Start begins the WebSocket server.
func (s *WebSocketServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)

	s.server = &http.Server{Addr: s.cfg.Bind, Handler: mux}
	util.Infof("WebSocket peer server listening on %s", s.cfg.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("WebSocket server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts down the server and closes every client connection.
func (s *WebSocketServer) Stop() {
	close(s.quit)
	if s.server != nil {
		s.server.Close()
	}
	s.clients.Range(func(_, value interface{}) bool {
		value.(*wsClient).conn.Close()
		return true
	})
	s.wg.Wait()
	util.Info("WebSocket server stopped")
}

func (s *WebSocketServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &wsClient{id: atomic.AddUint64(&s.clientSeq, 1), conn: conn}
	s.clients.Store(client.id, client)

	s.wg.Add(1)
	go s.handleClient(client)
}

func (s *WebSocketServer) handleClient(client *wsClient) {
	defer s.wg.Done()
	defer func() {
		client.conn.Close()
		s.clients.Delete(client.id)
		if client.authorized {
			s.gateway.Unregister(client.conn.RemoteAddr().String())
		}
	}()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(message, &req); err != nil {
			s.sendError(client, nil, -32700, "Parse error")
			continue
		}
		s.handleRequest(client, &req)
	}
}

type wsRequest struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type wsResponse struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

type wsNotify struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

func (s *WebSocketServer) handleRequest(client *wsClient, req *wsRequest) {
	switch req.Method {
	case "mining.authorize", "authorize":
		s.handleAuthorize(client, req)
	case "mining.submit", "submit":
		s.handleSubmit(client, req)
	default:
		s.sendError(client, req.ID, -32601, "Method not found")
	}
}

func (s *WebSocketServer) handleAuthorize(client *wsClient, req *wsRequest) {
	if len(req.Params) < 1 {
		s.sendError(client, req.ID, -1, "Invalid params")
		return
	}
	address, ok := req.Params[0].(string)
	if !ok {
		s.sendError(client, req.ID, -1, "Invalid address")
		return
	}

	client.address = address
	client.authorized = true

	s.gateway.Register(&wsPeer{server: s, client: client})

	if err := s.dispatcher.TryEnqueue(operator.PoolRegister{
		PeerIP: client.conn.RemoteAddr().String(),
		Prover: address,
	}); err != nil {
		util.Warnf("ws client %d: dispatcher queue full, dropping PoolRegister: %v", client.id, err)
	}

	s.sendResult(client, req.ID, true)
}

func (s *WebSocketServer) handleSubmit(client *wsClient, req *wsRequest) {
	if !client.authorized {
		s.sendError(client, req.ID, 24, "Unauthorized")
		return
	}
	if len(req.Params) < 2 {
		s.sendError(client, req.ID, -1, "Invalid params")
		return
	}

	nonceHex, _ := req.Params[0].(string)
	proofHex, _ := req.Params[1].(string)

	if !util.ValidateNonce(nonceHex) {
		s.sendError(client, req.ID, -1, "Invalid nonce")
		return
	}
	nonceBytes, err := util.HexToBytes(nonceHex)
	if err != nil {
		s.sendError(client, req.ID, -1, "Invalid nonce")
		return
	}
	proof, err := util.HexToBytes(proofHex)
	if err != nil {
		s.sendError(client, req.ID, -1, "Invalid proof")
		return
	}

	var nonce uint64
	for _, b := range nonceBytes[:8] {
		nonce = (nonce << 8) | uint64(b)
	}

	if err := s.dispatcher.TryEnqueue(operator.PoolResponse{
		PeerIP: client.conn.RemoteAddr().String(),
		Prover: client.address,
		Nonce:  chain.Nonce(nonce),
		Proof:  chain.Proof(proof),
	}); err != nil {
		s.sendError(client, req.ID, -1, "Busy")
		return
	}

	s.sendResult(client, req.ID, true)
}

func (s *WebSocketServer) sendResult(client *wsClient, id interface{}, result interface{}) {
	s.send(client, wsResponse{ID: id, Result: result})
}

func (s *WebSocketServer) sendError(client *wsClient, id interface{}, code int, message string) {
	s.send(client, wsResponse{ID: id, Error: []interface{}{code, message, nil}})
}

func (s *WebSocketServer) send(client *wsClient, msg interface{}) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()
	client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := client.conn.WriteJSON(msg); err != nil {
		util.Debugf("WebSocket write error for client %d: %v", client.id, err)
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	count := 0
	s.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// wsPeer implements operator.Peer over a WebSocket client connection.
type wsPeer struct {
	server *WebSocketServer
	client *wsClient
}

func (p *wsPeer) Addr() string {
	return p.client.conn.RemoteAddr().String()
}

func (p *wsPeer) SendPoolRequest(msg operator.PoolRequestMessage) error {
	p.server.send(p.client, wsNotify{
		Method: "mining.notify",
		Params: []interface{}{
			msg.Template.Height,
			util.BytesToHexNoPre(msg.Template.HeaderRoot[:]),
			msg.Difficulty,
		},
	})
	return nil
}

func (p *wsPeer) SendNewBlockTemplate(msg operator.NewBlockTemplateMessage) error {
	p.server.send(p.client, wsNotify{
		Method: "mining.set_height",
		Params: []interface{}{
			msg.Template.Height,
			util.BytesToHexNoPre(msg.Template.HeaderRoot[:]),
		},
	})
	return nil
}
