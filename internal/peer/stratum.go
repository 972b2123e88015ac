// Package peer adapts the Stratum mining protocol to the operator core: each
// authorized session becomes a registered Peer that the OutboundGateway can
// address directly or include in a broadcast, and each authorize/submit
// becomes a PoolRegister/PoolResponse enqueued onto the dispatcher's request
// queue.
package peer

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tos-network/tos-pool/internal/chain"
	"github.com/tos-network/tos-pool/internal/operator"
	"github.com/tos-network/tos-pool/internal/util"
)

// Security constants, unchanged from the transport's original limits: an
// operator accepting arbitrary TCP input still needs a request-size bound
// even though prover authentication itself is out of scope.
const (
	MaxRequestSize   = 1024
	MaxRequestBuffer = MaxRequestSize + 64
)

// StratumConfig configures the listener.
type StratumConfig struct {
	Bind    string
	TLSBind string
	TLSCert string
	TLSKey  string
}

// StratumServer accepts prover connections and translates Stratum messages
// into operator requests.
type StratumServer struct {
	cfg         StratumConfig
	dispatcher  *operator.Dispatcher
	gateway     *operator.Gateway
	listener    net.Listener
	tlsListener net.Listener

	sessions   sync.Map // sessionID -> *session
	sessionSeq uint64

	quit chan struct{}
	wg   sync.WaitGroup
}

// session is one prover's Stratum connection, and the operator.Peer this
// transport registers with the gateway once the prover authorizes.
type session struct {
	id         uint64
	conn       net.Conn
	address    string
	authorized bool

	mu sync.Mutex
}

// NewStratumServer builds a Stratum listener that enqueues requests onto
// dispatcher and registers sessions with gateway.
func NewStratumServer(cfg StratumConfig, dispatcher *operator.Dispatcher, gateway *operator.Gateway) *StratumServer {
	return &StratumServer{
		cfg:        cfg,
		dispatcher: dispatcher,
		gateway:    gateway,
		quit:       make(chan struct{}),
	}
}

// Start begins listening for prover connections.
func (s *StratumServer) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return fmt.Errorf("failed to bind stratum server: %w", err)
	}
	s.listener = listener
	util.Infof("Stratum server listening on %s", s.cfg.Bind)

	if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			util.Warnf("Failed to load TLS cert/key: %v", err)
		} else {
			tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}
			tlsListener, err := tls.Listen("tcp", s.cfg.TLSBind, tlsConfig)
			if err != nil {
				util.Warnf("Failed to bind TLS stratum server: %v", err)
			} else {
				s.tlsListener = tlsListener
				util.Infof("Stratum TLS server listening on %s", s.cfg.TLSBind)
			}
		}
	}

	s.wg.Add(1)
	go s.acceptLoop(s.listener)
	if s.tlsListener != nil {
		s.wg.Add(1)
		go s.acceptLoop(s.tlsListener)
	}
	return nil
}

// Stop shuts down the listener and every active session.
func (s *StratumServer) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	s.sessions.Range(func(_, value interface{}) bool {
		value.(*session).conn.Close()
		return true
	})
	s.wg.Wait()
	util.Info("Stratum server stopped")
}

func (s *StratumServer) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				util.Warnf("Accept error: %v", err)
				continue
			}
		}

		sess := &session{id: atomic.AddUint64(&s.sessionSeq, 1), conn: conn}
		s.sessions.Store(sess.id, sess)

		s.wg.Add(1)
		go s.handleSession(sess)
	}
}

func (s *StratumServer) handleSession(sess *session) {
	defer s.wg.Done()
	defer func() {
		sess.conn.Close()
		s.sessions.Delete(sess.id)
		if sess.authorized {
			s.gateway.Unregister(sess.conn.RemoteAddr().String())
		}
	}()

	ip := extractIP(sess.conn.RemoteAddr().String())
	sess.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	reader := bufio.NewReaderSize(sess.conn, MaxRequestBuffer)

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			return
		}
		if isPrefix || len(line) > MaxRequestSize {
			util.Warnf("session %d (%s): request too large", sess.id, ip)
			s.sendError(sess, nil, -32600, "Request too large")
			continue
		}

		sess.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))

		var req stratumRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(sess, nil, -32700, "Parse error")
			continue
		}
		s.handleRequest(sess, &req)
	}
}

type stratumRequest struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type stratumResponse struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  interface{} `json:"error,omitempty"`
}

type stratumNotify struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

func (s *StratumServer) handleRequest(sess *session, req *stratumRequest) {
	switch req.Method {
	case "mining.subscribe":
		s.sendResult(sess, req.ID, true)
	case "mining.authorize":
		s.handleAuthorize(sess, req)
	case "mining.submit":
		s.handleSubmit(sess, req)
	default:
		s.sendError(sess, req.ID, -32601, "Method not found")
	}
}

func (s *StratumServer) handleAuthorize(sess *session, req *stratumRequest) {
	if len(req.Params) < 1 {
		s.sendError(sess, req.ID, -1, "Invalid params")
		return
	}
	address, ok := req.Params[0].(string)
	if !ok {
		s.sendError(sess, req.ID, -1, "Invalid address")
		return
	}

	sess.mu.Lock()
	sess.address = address
	sess.authorized = true
	sess.mu.Unlock()

	s.gateway.Register(&stratumPeer{server: s, session: sess})

	if err := s.dispatcher.TryEnqueue(operator.PoolRegister{
		PeerIP: sess.conn.RemoteAddr().String(),
		Prover: address,
	}); err != nil {
		util.Warnf("session %d: dispatcher queue full, dropping PoolRegister: %v", sess.id, err)
	}

	s.sendResult(sess, req.ID, true)
}

func (s *StratumServer) handleSubmit(sess *session, req *stratumRequest) {
	sess.mu.Lock()
	authorized := sess.authorized
	address := sess.address
	sess.mu.Unlock()

	if !authorized {
		s.sendError(sess, req.ID, 24, "Unauthorized")
		return
	}
	if len(req.Params) < 2 {
		s.sendError(sess, req.ID, -1, "Invalid params")
		return
	}

	nonceHex, _ := req.Params[0].(string)
	proofHex, _ := req.Params[1].(string)

	if !util.ValidateNonce(nonceHex) {
		s.sendError(sess, req.ID, -1, "Invalid nonce")
		return
	}
	nonceBytes, err := util.HexToBytes(nonceHex)
	if err != nil {
		s.sendError(sess, req.ID, -1, "Invalid nonce")
		return
	}
	proof, err := util.HexToBytes(proofHex)
	if err != nil {
		s.sendError(sess, req.ID, -1, "Invalid proof")
		return
	}

	var nonce uint64
	for _, b := range nonceBytes[:8] {
		nonce = (nonce << 8) | uint64(b)
	}

	if err := s.dispatcher.TryEnqueue(operator.PoolResponse{
		PeerIP: sess.conn.RemoteAddr().String(),
		Prover: address,
		Nonce:  chain.Nonce(nonce),
		Proof:  chain.Proof(proof),
	}); err != nil {
		util.Warnf("session %d: dispatcher queue full, dropping PoolResponse: %v", sess.id, err)
		s.sendError(sess, req.ID, -1, "Busy")
		return
	}

	s.sendResult(sess, req.ID, true)
}

func (s *StratumServer) sendResult(sess *session, id interface{}, result interface{}) {
	s.send(sess, stratumResponse{ID: id, Result: result})
}

func (s *StratumServer) sendError(sess *session, id interface{}, code int, message string) {
	s.send(sess, stratumResponse{ID: id, Error: []interface{}{code, message, nil}})
}

func (s *StratumServer) send(sess *session, msg interface{}) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	sess.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	sess.conn.Write(append(data, '\n'))
}

// SessionCount returns the number of connected sessions.
func (s *StratumServer) SessionCount() int {
	count := 0
	s.sessions.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func extractIP(remoteAddr string) string {
	if idx := strings.LastIndex(remoteAddr, ":"); idx != -1 {
		ip := remoteAddr[:idx]
		ip = strings.TrimPrefix(ip, "[")
		ip = strings.TrimSuffix(ip, "]")
		return ip
	}
	return remoteAddr
}

// stratumPeer implements operator.Peer over a Stratum session.
type stratumPeer struct {
	server  *StratumServer
	session *session
}

func (p *stratumPeer) Addr() string {
	return p.session.conn.RemoteAddr().String()
}

func (p *stratumPeer) SendPoolRequest(msg operator.PoolRequestMessage) error {
	notify := stratumNotify{
		Method: "mining.notify",
		Params: []interface{}{
			msg.Template.Height,
			util.BytesToHexNoPre(msg.Template.HeaderRoot[:]),
			msg.Difficulty,
		},
	}
	p.server.send(p.session, notify)
	return nil
}

func (p *stratumPeer) SendNewBlockTemplate(msg operator.NewBlockTemplateMessage) error {
	notify := stratumNotify{
		Method: "mining.set_height",
		Params: []interface{}{
			msg.Template.Height,
			util.BytesToHexNoPre(msg.Template.HeaderRoot[:]),
		},
	}
	p.server.send(p.session, notify)
	return nil
}
