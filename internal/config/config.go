package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrConfigurationMissing marks a required option that was not supplied.
// Startup must not proceed past a validation failure.
var ErrConfigurationMissing = eris.New("configuration missing")

// Config holds the full application configuration.
type Config struct {
	Chain       ChainConfig       `yaml:"chain" mapstructure:"chain"`
	Drand       DrandConfig       `yaml:"drand" mapstructure:"drand"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Agent       AgentConfig       `yaml:"agent" mapstructure:"agent"`
	Correlation CorrelationConfig `yaml:"correlation" mapstructure:"correlation"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// ChainConfig configures chain connectivity and the commitment contract.
type ChainConfig struct {
	RPCEndpoint       string `yaml:"rpc_endpoint" mapstructure:"rpc_endpoint"`
	WSEndpoint        string `yaml:"ws_endpoint" mapstructure:"ws_endpoint"`
	PrivateKey        string `yaml:"private_key" mapstructure:"private_key"`
	ContractAddress   string `yaml:"contract_address" mapstructure:"contract_address"`
	ChainID           int64  `yaml:"chain_id" mapstructure:"chain_id"`
	RevealDelayBlocks uint64 `yaml:"reveal_delay_blocks" mapstructure:"reveal_delay_blocks"`
	RPCTimeoutSecs    int    `yaml:"rpc_timeout_secs" mapstructure:"rpc_timeout_secs"`
	TxWaitTimeoutSecs int    `yaml:"tx_wait_timeout_secs" mapstructure:"tx_wait_timeout_secs"`
	RPCRateLimit      int    `yaml:"rpc_rate_limit" mapstructure:"rpc_rate_limit"`
}

// DrandConfig configures the timelock encryption network.
type DrandConfig struct {
	URL             string `yaml:"url" mapstructure:"url"`
	ChainHash       string `yaml:"chain_hash" mapstructure:"chain_hash"`
	SecondsPerBlock int    `yaml:"seconds_per_block" mapstructure:"seconds_per_block"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Bucket      string `yaml:"bucket" mapstructure:"bucket"`
	Region      string `yaml:"region" mapstructure:"region"`
	KeyPrefix   string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// AnthropicConfig holds Anthropic API settings for the answer generator.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AgentConfig configures the answering-agent poll loop.
type AgentConfig struct {
	PollIntervalSecs  int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	FetchTimeoutSecs  int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	ShutdownGraceSecs int `yaml:"shutdown_grace_secs" mapstructure:"shutdown_grace_secs"`
}

// CorrelationConfig bounds the in-memory reveal correlation table.
type CorrelationConfig struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// ServerConfig configures the relay status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VERDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "verdict.db")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("chain.reveal_delay_blocks", 10)
	v.SetDefault("chain.rpc_timeout_secs", 10)
	v.SetDefault("chain.tx_wait_timeout_secs", 90)
	v.SetDefault("chain.rpc_rate_limit", 20)
	v.SetDefault("drand.url", "https://api.drand.sh")
	v.SetDefault("drand.chain_hash", "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971")
	v.SetDefault("drand.seconds_per_block", 12)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("agent.poll_interval_secs", 15)
	v.SetDefault("agent.fetch_timeout_secs", 30)
	v.SetDefault("agent.shutdown_grace_secs", 10)
	v.SetDefault("correlation.max_entries", 1000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ValidateChain checks the options the commit/reveal coordinator cannot run
// without. Returns ErrConfigurationMissing naming the first absent option.
func (c *Config) ValidateChain() error {
	switch {
	case c.Chain.RPCEndpoint == "":
		return eris.Wrap(ErrConfigurationMissing, "chain.rpc_endpoint")
	case c.Chain.WSEndpoint == "":
		return eris.Wrap(ErrConfigurationMissing, "chain.ws_endpoint")
	case c.Chain.PrivateKey == "":
		return eris.Wrap(ErrConfigurationMissing, "chain.private_key")
	case c.Chain.ContractAddress == "":
		return eris.Wrap(ErrConfigurationMissing, "chain.contract_address")
	case c.Chain.ChainID == 0:
		return eris.Wrap(ErrConfigurationMissing, "chain.chain_id")
	}
	return nil
}

// ValidateAgent checks the options an answering agent cannot run without.
func (c *Config) ValidateAgent() error {
	switch {
	case c.Chain.PrivateKey == "":
		return eris.Wrap(ErrConfigurationMissing, "chain.private_key")
	case c.Anthropic.Key == "":
		return eris.Wrap(ErrConfigurationMissing, "anthropic.key")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
