package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the overeality node.
type Config struct {
	// Chain identity
	ChainID      uint64
	ChainName    string
	ChainVersion string

	// Storage
	DataDir string

	// EVM environment defaults
	GasPriceFloor uint64
	BlockGasLimit uint64

	// CometBFT networking (the ABCI application itself runs in-process, not
	// behind a socket; these are the consensus engine's own listen addrs)
	P2PListenAddr string
	RPCListenAddr string

	// Genesis
	GenesisPath string // path to a YAML genesis-accounts file, see LoadGenesisFile

	// Operational surfaces
	HealthAddr  string
	MetricsAddr string

	LogLevel string
}

// Load reads configuration from environment variables. Everything has a
// workable default for local development; Validate tightens that up for
// production use.
func Load() (*Config, error) {
	cfg := &Config{
		ChainID:      getEnvUint64("OVR_CHAIN_ID", 1337),
		ChainName:    getEnv("OVR_CHAIN_NAME", "overeality-devnet"),
		ChainVersion: getEnv("OVR_CHAIN_VERSION", "0.1.0"),

		DataDir: getEnv("OVR_DATA_DIR", "./data"),

		GasPriceFloor: getEnvUint64("OVR_GAS_PRICE_FLOOR", 1),
		BlockGasLimit: getEnvUint64("OVR_BLOCK_GAS_LIMIT", 30_000_000),

		P2PListenAddr: getEnv("OVR_P2P_LISTEN_ADDR", "tcp://0.0.0.0:26656"),
		RPCListenAddr: getEnv("OVR_RPC_LISTEN_ADDR", "tcp://0.0.0.0:26657"),

		GenesisPath: getEnv("OVR_GENESIS_PATH", "./genesis.yaml"),

		HealthAddr:  getEnv("OVR_HEALTH_ADDR", "0.0.0.0:8081"),
		MetricsAddr: getEnv("OVR_METRICS_ADDR", "0.0.0.0:9090"),

		LogLevel: getEnv("OVR_LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent enough to
// start a node.
func (c *Config) Validate() error {
	var errs []string

	if c.ChainID == 0 {
		errs = append(errs, "OVR_CHAIN_ID must be non-zero")
	}
	if c.DataDir == "" {
		errs = append(errs, "OVR_DATA_DIR is required")
	}
	if c.BlockGasLimit == 0 {
		errs = append(errs, "OVR_BLOCK_GAS_LIMIT must be non-zero")
	}
	if !strings.HasPrefix(c.P2PListenAddr, "tcp://") && !strings.HasPrefix(c.P2PListenAddr, "unix://") {
		errs = append(errs, "OVR_P2P_LISTEN_ADDR must start with tcp:// or unix://")
	}
	if !strings.HasPrefix(c.RPCListenAddr, "tcp://") && !strings.HasPrefix(c.RPCListenAddr, "unix://") {
		errs = append(errs, "OVR_RPC_LISTEN_ADDR must start with tcp:// or unix://")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
