package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EVM_RPC_URL", "https://sepolia.base.org")
	t.Setenv("EVM_PRIVATE_KEY", "")
	t.Setenv("SVM_RPC_URL", "")
	t.Setenv("SVM_PRIVATE_KEY", "")
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4021, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://sepolia.base.org", cfg.EVM.RPCURL)
	assert.Empty(t, cfg.SVM.RPCURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EVM_RPC_URL", "https://mainnet.base.org")
	t.Setenv("SVM_RPC_URL", "https://api.mainnet-beta.solana.com")
	t.Setenv("SVM_PRIVATE_KEY", "base58key")
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "base58key", cfg.SVM.PrivateKey)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("EVM_RPC_URL", "https://sepolia.base.org")
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresAtLeastOneFamily(t *testing.T) {
	t.Setenv("EVM_RPC_URL", "")
	t.Setenv("SVM_RPC_URL", "")

	_, err := Load()
	assert.Error(t, err)
}
