package config

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, uint64(10), cfg.Chain.RevealDelayBlocks)
	assert.Equal(t, 10, cfg.Chain.RPCTimeoutSecs)
	assert.Equal(t, 90, cfg.Chain.TxWaitTimeoutSecs)
	assert.Equal(t, 15, cfg.Agent.PollIntervalSecs)
	assert.Equal(t, 10, cfg.Agent.ShutdownGraceSecs)
	assert.Equal(t, 1000, cfg.Correlation.MaxEntries)
	assert.Equal(t, 12, cfg.Drand.SecondsPerBlock)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VERDICT_CORRELATION_MAX_ENTRIES", "50")
	t.Setenv("VERDICT_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Correlation.MaxEntries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateChain(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ValidateChain()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConfigurationMissing))
	assert.Contains(t, err.Error(), "chain.rpc_endpoint")

	cfg.Chain.RPCEndpoint = "http://localhost:8545"
	cfg.Chain.WSEndpoint = "ws://localhost:8546"
	cfg.Chain.PrivateKey = "ab" // not validated for shape here
	cfg.Chain.ContractAddress = "0x0000000000000000000000000000000000000001"

	err = cfg.ValidateChain()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.chain_id")

	cfg.Chain.ChainID = 31337
	assert.NoError(t, cfg.ValidateChain())
}

func TestValidateAgent(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ValidateAgent()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConfigurationMissing))

	cfg.Chain.PrivateKey = "ab"
	cfg.Anthropic.Key = "sk-test"
	assert.NoError(t, cfg.ValidateAgent())
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
}
