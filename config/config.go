// Package config loads facilitator configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// FamilyConfig holds the per-chain-family settings. PrivateKey may be empty:
// verification stays available, settlement is disabled for that family only.
type FamilyConfig struct {
	RPCURL     string
	PrivateKey string
}

// Config is the full process configuration.
type Config struct {
	Port     int
	LogLevel string
	EVM      FamilyConfig
	SVM      FamilyConfig
}

// Load reads configuration from the environment, honoring a .env file in the
// working directory when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:     4021,
		LogLevel: envOr("LOG_LEVEL", "info"),
		EVM: FamilyConfig{
			RPCURL:     os.Getenv("EVM_RPC_URL"),
			PrivateKey: os.Getenv("EVM_PRIVATE_KEY"),
		},
		SVM: FamilyConfig{
			RPCURL:     os.Getenv("SVM_RPC_URL"),
			PrivateKey: os.Getenv("SVM_PRIVATE_KEY"),
		},
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Port = p
	}

	if cfg.EVM.RPCURL == "" && cfg.SVM.RPCURL == "" {
		return nil, fmt.Errorf("at least one of EVM_RPC_URL or SVM_RPC_URL must be set")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
