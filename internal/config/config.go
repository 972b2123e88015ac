// Package config handles configuration loading and validation for the
// mining-pool operator.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/tos-network/tos-pool/internal/util"
)

// Config holds all configuration for the operator.
type Config struct {
	Operator  OperatorConfig  `mapstructure:"operator"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Stratum   StratumConfig   `mapstructure:"stratum"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	API       APIConfig       `mapstructure:"api"`
	NewRelic  NewRelicConfig  `mapstructure:"newrelic"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Log       LogConfig       `mapstructure:"log"`
}

// OperatorConfig defines this operator's own identity: whether it runs the
// template refresher at all, and who the mined coinbase pays.
type OperatorConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Address           string `mapstructure:"address"`
	LocalIP           string `mapstructure:"local_ip"`
	CoinbaseIsPublic  bool   `mapstructure:"coinbase_is_public"`
	NetworkDifficulty uint64 `mapstructure:"network_difficulty"`
	WorkerPoolSize    int    `mapstructure:"worker_pool_size"`
}

// RedisConfig defines the share ledger's storage endpoint.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChainConfig defines the ledger reader's daemon endpoints.
type ChainConfig struct {
	Endpoints []ChainEndpoint `mapstructure:"endpoints"`
}

// ChainEndpoint names one failover-capable daemon endpoint.
type ChainEndpoint struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StratumConfig defines the Stratum prover transport.
type StratumConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
	TLSBind string `mapstructure:"tls_bind"`
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

// WebSocketConfig defines the WebSocket prover transport.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// APIConfig defines the read-only stats API.
type APIConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Bind       string        `mapstructure:"bind"`
	StatsCache time.Duration `mapstructure:"stats_cache"`
}

// NewRelicConfig defines APM reporting.
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	LicenseKey string `mapstructure:"license_key"`
	AppName    string `mapstructure:"app_name"`
}

// ProfilingConfig defines pprof exposure.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tos-operator")
	}

	v.SetEnvPrefix("TOS_OPERATOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("operator.enabled", true)
	v.SetDefault("operator.coinbase_is_public", false)
	v.SetDefault("operator.worker_pool_size", 4)

	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("stratum.enabled", true)
	v.SetDefault("stratum.bind", "0.0.0.0:3333")
	v.SetDefault("stratum.tls_bind", "0.0.0.0:3334")

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.bind", "0.0.0.0:3335")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "0.0.0.0:8080")
	v.SetDefault("api.stats_cache", "10s")

	v.SetDefault("newrelic.enabled", false)
	v.SetDefault("newrelic.app_name", "tos-operator")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors. An operator with no address has
// nowhere to send a mined coinbase, which per §4.4 is a fatal configuration
// error: the refresher must not start.
func (c *Config) Validate() error {
	if c.Operator.Enabled && c.Operator.Address == "" {
		return fmt.Errorf("operator.address is required when operator role is enabled")
	}

	if c.Operator.Enabled && c.Operator.Address != "" && !util.ValidateAddress(c.Operator.Address) {
		return fmt.Errorf("operator.address %q is not a valid tos1 address", c.Operator.Address)
	}

	if len(c.Chain.Endpoints) == 0 {
		return fmt.Errorf("chain.endpoints must name at least one ledger endpoint")
	}

	if !c.Stratum.Enabled && !c.WebSocket.Enabled {
		return fmt.Errorf("at least one of stratum or websocket transport must be enabled")
	}

	return nil
}
