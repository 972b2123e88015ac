// Package api provides the operator's read-only REST API: share and prover
// visibility for dashboards and payout tooling, none of it mutating operator
// state.
package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tos-network/tos-pool/internal/config"
	"github.com/tos-network/tos-pool/internal/ledger"
	"github.com/tos-network/tos-pool/internal/registry"
	"github.com/tos-network/tos-pool/internal/template"
	"github.com/tos-network/tos-pool/internal/util"
)

// Server is the read-only stats API server.
type Server struct {
	cfg      *config.Config
	ledger   *ledger.ShareLedger
	registry *registry.ProverRegistry
	cache    *template.Cache
	router   *gin.Engine
	server   *http.Server

	cacheMu   sync.RWMutex
	allShares []ledger.Round
	cachedAt  time.Time
}

// NewServer creates a new API server over the ledger, registry, and template
// cache. None of these are ever mutated by a request handler.
func NewServer(cfg *config.Config, sl *ledger.ShareLedger, reg *registry.ProverRegistry, cache *template.Cache) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{cfg: cfg, ledger: sl, registry: reg, cache: cache, router: router}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api := s.router.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		api.GET("/template", s.handleTemplate)
		api.GET("/provers", s.handleProvers)
		api.GET("/shares/:height/:coinbase", s.handleSharesForBlock)
		api.GET("/shares/prover/:address", s.handleSharesForProver)
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Start begins the API server.
func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.cfg.API.Bind, Handler: s.router}
	util.Infof("API server listening on %s", s.cfg.API.Bind)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("API server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts down the API server.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// StatsResponse summarizes the operator's current round set.
type StatsResponse struct {
	Rounds   int    `json:"rounds"`
	Provers  int    `json:"provers"`
	Height   uint64 `json:"height"`
	Now      int64  `json:"now"`
}

func (s *Server) handleStats(c *gin.Context) {
	rounds, err := s.cachedAllShares()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	provers, err := s.ledger.Provers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var height uint64
	if snap := s.cache.Snapshot(); snap.Template != nil {
		height = snap.Template.Height
	}

	c.JSON(http.StatusOK, StatsResponse{
		Rounds:  len(rounds),
		Provers: len(provers),
		Height:  height,
		Now:     time.Now().Unix(),
	})
}

// TemplateResponse is the current rotation unit's public view.
type TemplateResponse struct {
	Height         uint64 `json:"height"`
	CoinbaseRecord string `json:"coinbase_record"`
	Generation     uint64 `json:"generation"`
}

func (s *Server) handleTemplate(c *gin.Context) {
	snap := s.cache.Snapshot()
	if snap.Template == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no template installed yet"})
		return
	}
	c.JSON(http.StatusOK, TemplateResponse{
		Height:         snap.Template.Height,
		CoinbaseRecord: snap.Template.CoinbaseRecord,
		Generation:     snap.Generation,
	})
}

func (s *Server) handleProvers(c *gin.Context) {
	provers := s.registry.All()
	c.JSON(http.StatusOK, provers)
}

func (s *Server) handleSharesForBlock(c *gin.Context) {
	height, err := parseHeight(c.Param("height"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid height"})
		return
	}
	coinbase := c.Param("coinbase")

	shares, err := s.ledger.SharesForBlock(height, coinbase)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, shares)
}

func (s *Server) handleSharesForProver(c *gin.Context) {
	address := c.Param("address")
	total, err := s.ledger.SharesForProver(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "shares": total})
}

// cachedAllShares serves AllShares from a short-lived cache: every round's
// share map is itself a Redis round trip, and the dashboard polls this far
// more often than the round set actually changes.
func (s *Server) cachedAllShares() ([]ledger.Round, error) {
	s.cacheMu.RLock()
	if time.Since(s.cachedAt) < s.cfg.API.StatsCache && s.allShares != nil {
		rounds := s.allShares
		s.cacheMu.RUnlock()
		return rounds, nil
	}
	s.cacheMu.RUnlock()

	rounds, err := s.ledger.AllShares()
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	s.allShares = rounds
	s.cachedAt = time.Now()
	s.cacheMu.Unlock()
	return rounds, nil
}

func parseHeight(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}
