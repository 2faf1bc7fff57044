// Copyright 2025 Certen Protocol
//
// Genesis file loading: chain identity and initial OFUEL balances, read
// from a YAML file with ${VAR_NAME} / ${VAR_NAME:-default} environment
// variable substitution, then re-marshaled to JSON for ABCI's
// RequestInitChain.AppStateBytes.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// GenesisAccounts is the on-disk shape of a genesis file: chain identity
// plus a map of hex address to decimal OFUEL balance.
type GenesisAccounts struct {
	ChainName     string            `yaml:"chain_name" json:"chain_name"`
	ChainVersion  string            `yaml:"chain_version" json:"chain_version"`
	BlockGasLimit uint64            `yaml:"block_gas_limit" json:"block_gas_limit"`
	Balances      map[string]string `yaml:"balances" json:"balances"`
}

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		if len(groups) >= 4 {
			return groups[3]
		}
		return ""
	})
}

// LoadGenesisFile reads a YAML genesis file at path, substituting
// ${VAR_NAME} references against the current environment, and returns it
// re-encoded as JSON suitable for CometBFT's GenesisDoc.AppState. A missing
// file is not an error: it yields an empty app state with no pre-funded
// accounts, matching a from-scratch devnet.
func LoadGenesisFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read genesis file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var accounts GenesisAccounts
	if err := yaml.Unmarshal([]byte(expanded), &accounts); err != nil {
		return nil, fmt.Errorf("config: parse genesis file %s: %w", path, err)
	}

	encoded, err := json.Marshal(accounts)
	if err != nil {
		return nil, fmt.Errorf("config: encode genesis accounts: %w", err)
	}
	return encoded, nil
}
