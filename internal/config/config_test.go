package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testOperatorAddress = "tos1023456789acdefghjklmnpqrstuvwxyz023456789acdefghjklmnpqrst"

func validConfig() Config {
	return Config{
		Operator: OperatorConfig{Enabled: true, Address: testOperatorAddress},
		Chain:    ChainConfig{Endpoints: []ChainEndpoint{{Name: "primary", URL: "http://127.0.0.1:8545"}}},
		Stratum:  StratumConfig{Enabled: true},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "operator enabled without address",
			mutate:  func(c *Config) { c.Operator.Address = "" },
			wantErr: true,
		},
		{
			name:    "operator enabled with malformed address",
			mutate:  func(c *Config) { c.Operator.Address = "tos1operator" },
			wantErr: true,
		},
		{
			name: "operator disabled without address is fine",
			mutate: func(c *Config) {
				c.Operator.Enabled = false
				c.Operator.Address = ""
			},
			wantErr: false,
		},
		{
			name:    "no chain endpoints",
			mutate:  func(c *Config) { c.Chain.Endpoints = nil },
			wantErr: true,
		},
		{
			name: "no prover transport enabled",
			mutate: func(c *Config) {
				c.Stratum.Enabled = false
				c.WebSocket.Enabled = false
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error but got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigStructs(t *testing.T) {
	chain := ChainConfig{
		Endpoints: []ChainEndpoint{
			{Name: "primary", URL: "http://127.0.0.1:8545", Timeout: 10 * time.Second},
		},
	}
	if chain.Endpoints[0].Name != "primary" {
		t.Errorf("ChainEndpoint.Name = %s, want primary", chain.Endpoints[0].Name)
	}

	redis := RedisConfig{URL: "localhost:6379", Password: "secret", DB: 1}
	if redis.DB != 1 {
		t.Errorf("RedisConfig.DB = %d, want 1", redis.DB)
	}

	stratum := StratumConfig{Enabled: true, Bind: "0.0.0.0:3333"}
	if !stratum.Enabled {
		t.Error("StratumConfig.Enabled should be true")
	}

	api := APIConfig{Enabled: true, Bind: "0.0.0.0:8080", StatsCache: 10 * time.Second}
	if api.StatsCache != 10*time.Second {
		t.Errorf("APIConfig.StatsCache = %v, want 10s", api.StatsCache)
	}

	profiling := ProfilingConfig{Enabled: true, Bind: "127.0.0.1:6060"}
	if !profiling.Enabled {
		t.Error("ProfilingConfig.Enabled should be true")
	}

	newrelic := NewRelicConfig{Enabled: true, AppName: "tos-operator"}
	if newrelic.AppName != "tos-operator" {
		t.Errorf("NewRelicConfig.AppName = %s, want tos-operator", newrelic.AppName)
	}
}

func TestLoadWithTempConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
operator:
  enabled: true
  address: "` + testOperatorAddress + `"

chain:
  endpoints:
    - name: "primary"
      url: "http://127.0.0.1:8545"
      timeout: 10s

stratum:
  enabled: true
  bind: "0.0.0.0:3333"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Operator.Address != testOperatorAddress {
		t.Errorf("Operator.Address = %s, want %s", cfg.Operator.Address, testOperatorAddress)
	}
	if len(cfg.Chain.Endpoints) != 1 {
		t.Fatalf("expected 1 chain endpoint, got %d", len(cfg.Chain.Endpoints))
	}
	if cfg.Chain.Endpoints[0].URL != "http://127.0.0.1:8545" {
		t.Errorf("Chain.Endpoints[0].URL = %s, want http://127.0.0.1:8545", cfg.Chain.Endpoints[0].URL)
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// operator enabled but missing address
	configContent := `
operator:
  enabled: true

chain:
  endpoints:
    - name: "primary"
      url: "http://127.0.0.1:8545"

stratum:
  enabled: true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() should return error for invalid config")
	}
}

func TestLoadNonexistentConfig(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for non-existent config")
	}
}
