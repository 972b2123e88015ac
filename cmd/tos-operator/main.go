// tos-operator runs a mining-pool operator: it tracks provers, refreshes
// block templates against a ledger daemon, dispatches share submissions, and
// assembles blocks once a submitted proof clears network difficulty.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tos-network/tos-pool/internal/api"
	"github.com/tos-network/tos-pool/internal/chain"
	"github.com/tos-network/tos-pool/internal/config"
	"github.com/tos-network/tos-pool/internal/ledger"
	"github.com/tos-network/tos-pool/internal/operator"
	"github.com/tos-network/tos-pool/internal/peer"
	"github.com/tos-network/tos-pool/internal/profiling"
	"github.com/tos-network/tos-pool/internal/registry"
	"github.com/tos-network/tos-pool/internal/storage"
	"github.com/tos-network/tos-pool/internal/telemetry"
	"github.com/tos-network/tos-pool/internal/template"
	"github.com/tos-network/tos-pool/internal/util"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tos-operator v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	util.Infof("tos-operator v%s starting", version)

	store, err := storage.NewShareStore(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		util.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer store.Close()
	shareLedger := ledger.New(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoints := make([]chain.EndpointConfig, len(cfg.Chain.Endpoints))
	for i, e := range cfg.Chain.Endpoints {
		endpoints[i] = chain.EndpointConfig{Name: e.Name, URL: e.URL, Timeout: e.Timeout}
	}
	chainClient := chain.NewFailoverClient(ctx, cfg.Operator.Address, endpoints)
	chainClient.Start()

	proverRegistry := registry.New()
	templateCache := template.New()
	gateway := operator.NewGateway(chainClient)

	dispatcher := operator.New(operator.Config{
		Cache:             templateCache,
		Registry:          proverRegistry,
		Ledger:            shareLedger,
		Gateway:           gateway,
		LedgerReader:      chainClient,
		LocalIP:           cfg.Operator.LocalIP,
		NetworkDifficulty: cfg.Operator.NetworkDifficulty,
		WorkerPoolSize:    cfg.Operator.WorkerPoolSize,
	})
	dispatcher.Start(ctx)

	var refresher *template.Refresher
	if cfg.Operator.Enabled {
		refresher = template.NewRefresher(templateCache, chainClient, chainClient, gateway, cfg.Operator.Address, cfg.Operator.CoinbaseIsPublic)
		if err := refresher.Start(ctx); err != nil {
			util.Fatalf("Failed to start template refresher: %v", err)
		}
	}

	var stratumServer *peer.StratumServer
	var wsServer *peer.WebSocketServer
	var apiServer *api.Server
	var pprofServer *profiling.Server
	var telemetryAgent *telemetry.Agent

	if cfg.Stratum.Enabled {
		stratumServer = peer.NewStratumServer(peer.StratumConfig{
			Bind:    cfg.Stratum.Bind,
			TLSBind: cfg.Stratum.TLSBind,
			TLSCert: cfg.Stratum.TLSCert,
			TLSKey:  cfg.Stratum.TLSKey,
		}, dispatcher, gateway)
		if err := stratumServer.Start(); err != nil {
			util.Fatalf("Failed to start Stratum server: %v", err)
		}
	}

	if cfg.WebSocket.Enabled {
		wsServer = peer.NewWebSocketServer(peer.WebSocketConfig{Bind: cfg.WebSocket.Bind}, dispatcher, gateway)
		if err := wsServer.Start(); err != nil {
			util.Errorf("Failed to start WebSocket server: %v", err)
		}
	}

	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, shareLedger, proverRegistry, templateCache)
		if err := apiServer.Start(); err != nil {
			util.Fatalf("Failed to start API server: %v", err)
		}
	}

	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Errorf("Failed to start pprof server: %v", err)
		}
	}

	telemetryAgent = telemetry.NewAgent(&cfg.NewRelic)
	if err := telemetryAgent.Start(); err != nil {
		util.Errorf("Failed to start telemetry agent: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("Operator started successfully. Press Ctrl+C to stop.")

	<-sigChan
	util.Info("Shutting down...")

	if pprofServer != nil {
		pprofServer.Stop()
	}
	if apiServer != nil {
		apiServer.Stop()
	}
	if wsServer != nil {
		wsServer.Stop()
	}
	if stratumServer != nil {
		stratumServer.Stop()
	}
	if refresher != nil {
		refresher.Stop()
	}
	dispatcher.Stop()
	chainClient.Stop()
	telemetryAgent.Stop()

	util.Info("Operator stopped")
}
