// Package telemetry reports operator activity to New Relic APM.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/tos-network/tos-pool/internal/config"
	"github.com/tos-network/tos-pool/internal/util"
)

// Agent wraps New Relic APM reporting for the operator.
type Agent struct {
	cfg *config.NewRelicConfig
	mu  sync.RWMutex
	app *newrelic.Application
}

// NewAgent creates an Agent. Start must be called before any Record* method
// has an effect; before that, every Record* call is a silent no-op.
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{cfg: cfg}
}

// Start connects to New Relic. A disabled or unconfigured agent leaves
// app nil and every later Record* call becomes a no-op.
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("telemetry disabled")
		return nil
	}
	if a.cfg.LicenseKey == "" {
		util.Warn("telemetry license key not configured, disabling")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("telemetry connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("telemetry enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop flushes and closes the connection to New Relic.
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.Shutdown(10 * time.Second)
	}
}

// IsEnabled reports whether Start connected successfully.
func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

// StartTransaction starts a New Relic transaction, or returns nil when
// telemetry is disabled.
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// NewContext attaches a transaction to ctx, for propagation into downstream
// instrumented calls (e.g. the chain RPC client).
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

func (a *Agent) recordEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

func (a *Agent) recordMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// RecordShareSubmission records a PoolResponse's verification outcome.
func (a *Agent) RecordShareSubmission(prover string, difficulty uint64, valid bool) {
	status := "valid"
	if !valid {
		status = "invalid"
	}
	a.recordEvent("ShareSubmission", map[string]interface{}{
		"prover":     prover,
		"difficulty": difficulty,
		"status":     status,
	})
}

// RecordBlockFound records a successfully assembled and submitted block.
func (a *Agent) RecordBlockFound(height uint64, finder string) {
	a.recordEvent("BlockFound", map[string]interface{}{
		"height": height,
		"finder": finder,
	})
}

// RecordProverRegistered records a PoolRegister that installed a new prover.
func (a *Agent) RecordProverRegistered(prover, peerIP string) {
	a.recordEvent("ProverRegistered", map[string]interface{}{
		"prover": prover,
		"peerIP": peerIP,
	})
}

// UpdateOperatorMetrics reports the current prover count and network tip.
func (a *Agent) UpdateOperatorMetrics(provers int, height uint64, networkDifficulty uint64) {
	a.recordMetric("Custom/Operator/Provers", float64(provers))
	a.recordMetric("Custom/Operator/Height", float64(height))
	a.recordMetric("Custom/Operator/NetworkDifficulty", float64(networkDifficulty))
}
