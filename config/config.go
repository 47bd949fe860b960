package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	EnvRPCToken = "DONATIONS_RPC_TOKEN"
	EnvName     = "DONATIONS_ENV"
	EnvFaucet   = "DONATIONS_ENABLE_FAUCET"

	DefaultProgramID = "7XhmW42LmPuk2gcHjjsDwGiTurWDrUFP9yff9AK4mkB4"
)

type Config struct {
	Environment          string              `toml:"Environment"`
	RPCAddress           string              `toml:"RPCAddress"`
	DataDir              string              `toml:"DataDir"`
	ProgramID            string              `toml:"ProgramID"`
	RPCToken             string              `toml:"RPCToken,omitempty"`
	RPCReadHeaderTimeout int                 `toml:"RPCReadHeaderTimeout"`
	TxTimeoutSeconds     int                 `toml:"TxTimeoutSeconds"`
	EnableFaucet         bool                `toml:"EnableFaucet"`
	FaucetMaxLamports    uint64              `toml:"FaucetMaxLamports"`
	FaucetPerMinute      float64             `toml:"FaucetPerMinute"`
	FaucetBurst          int                 `toml:"FaucetBurst"`
	Logging              Logging             `toml:"logging"`
	Telemetry            Telemetry           `toml:"telemetry"`
	Genesis              []GenesisAllocation `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if cfg, err = createDefault(path); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv populates the process environment from the given .env files.
// Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Environment:          "dev",
		RPCAddress:           "127.0.0.1:8899",
		DataDir:              "./donations-data",
		ProgramID:            DefaultProgramID,
		RPCReadHeaderTimeout: 5,
		TxTimeoutSeconds:     10,
		FaucetMaxLamports:    10_000_000_000,
		FaucetPerMinute:      30,
		FaucetBurst:          5,
		Logging:              Logging{Level: "info", MaxSizeMB: 100},
		Genesis:              []GenesisAllocation{},
	}
}

func applyDefaults(cfg *Config) {
	def := defaults()
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = def.Environment
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = def.RPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.ProgramID) == "" {
		cfg.ProgramID = def.ProgramID
	}
	if cfg.RPCReadHeaderTimeout <= 0 {
		cfg.RPCReadHeaderTimeout = def.RPCReadHeaderTimeout
	}
	if cfg.TxTimeoutSeconds <= 0 {
		cfg.TxTimeoutSeconds = def.TxTimeoutSeconds
	}
	if cfg.FaucetMaxLamports == 0 {
		cfg.FaucetMaxLamports = def.FaucetMaxLamports
	}
	if cfg.FaucetPerMinute < 0 {
		cfg.FaucetPerMinute = 0
	}
	if cfg.FaucetBurst <= 0 {
		cfg.FaucetBurst = def.FaucetBurst
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisAllocation{}
	}
}

func applyEnv(cfg *Config) error {
	if token, ok := os.LookupEnv(EnvRPCToken); ok {
		cfg.RPCToken = strings.TrimSpace(token)
	}
	if env := strings.TrimSpace(os.Getenv(EnvName)); env != "" {
		cfg.Environment = env
	}
	if raw := strings.TrimSpace(os.Getenv(EnvFaucet)); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvFaucet, err)
		}
		cfg.EnableFaucet = enabled
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
