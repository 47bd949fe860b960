package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// ValidateConfig rejects configurations the node cannot start with.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	if _, _, err := net.SplitHostPort(cfg.RPCAddress); err != nil {
		return fmt.Errorf("config: RPCAddress %q: %w", cfg.RPCAddress, err)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must be set")
	}
	if _, err := cfg.ProgramKey(); err != nil {
		return err
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("config: logging.Level %q not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Telemetry.Traces && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: telemetry.Endpoint required when traces are enabled")
	}
	if cfg.EnableFaucet && cfg.FaucetMaxLamports == 0 {
		return fmt.Errorf("config: FaucetMaxLamports must be positive when the faucet is enabled")
	}
	if _, err := cfg.GenesisAccounts(); err != nil {
		return err
	}
	return nil
}

// ProgramKey parses the configured registry program id.
func (c *Config) ProgramKey() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(c.ProgramID))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("config: ProgramID %q: %w", c.ProgramID, err)
	}
	return key, nil
}

// GenesisAccount is a parsed genesis allocation.
type GenesisAccount struct {
	Address  solana.PublicKey
	Lamports uint64
}

// GenesisAccounts parses the genesis allocations, rejecting duplicates.
func (c *Config) GenesisAccounts() ([]GenesisAccount, error) {
	out := make([]GenesisAccount, 0, len(c.Genesis))
	seen := make(map[solana.PublicKey]bool, len(c.Genesis))
	for i, alloc := range c.Genesis {
		addr, err := solana.PublicKeyFromBase58(strings.TrimSpace(alloc.Address))
		if err != nil {
			return nil, fmt.Errorf("config: Genesis[%d].Address: %w", i, err)
		}
		if seen[addr] {
			return nil, fmt.Errorf("config: Genesis[%d]: duplicate address %s", i, addr)
		}
		seen[addr] = true
		out = append(out, GenesisAccount{Address: addr, Lamports: alloc.Lamports})
	}
	return out, nil
}
