// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment,
// listen addresses, and logging level.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Vault holds the ledger parameters. Amounts are decimal strings in the
// reference asset's smallest unit.
type Vault struct {
	ReferenceAsset    string `yaml:"reference_asset"`
	Custody           string `yaml:"custody"`
	Capacity          string `yaml:"capacity"`
	WithdrawalCeiling string `yaml:"withdrawal_ceiling"`
}

// Storage points at the durable ledger database.
type Storage struct {
	Path string `yaml:"path"`
}

// Events configures notification sinks.
type Events struct {
	JournalPath string `yaml:"journal_path"`
}

// GenesisBalance seeds one holding on the simulation chain.
type GenesisBalance struct {
	Owner  string `yaml:"owner"`
	Asset  string `yaml:"asset"` // "native" for the native currency
	Amount string `yaml:"amount"`
}

// GenesisPool seeds one constant-product pool.
type GenesisPool struct {
	Address  string `yaml:"address"`
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
}

// AssetDisplay maps an asset to its display decimals for API rendering.
type AssetDisplay struct {
	Asset    string `yaml:"asset"`
	Decimals int32  `yaml:"decimals"`
}

// Chain describes the simulation chain genesis.
type Chain struct {
	WrappedNative string           `yaml:"wrapped_native"`
	Balances      []GenesisBalance `yaml:"balances"`
	Pools         []GenesisPool    `yaml:"pools"`
	Display       []AssetDisplay   `yaml:"display"`
}

// Admin lists the initial role holders. The super-admin comes from the
// environment, never from the file.
type Admin struct {
	Admins []string `yaml:"admins"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Vault   Vault   `yaml:"vault"`
	Storage Storage `yaml:"storage"`
	Events  Events  `yaml:"events"`
	Chain   Chain   `yaml:"chain"`
	Admin   Admin   `yaml:"admin"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SuperAdminFromEnv resolves the super-admin identity from the environment,
// loading a .env file when present.
func SuperAdminFromEnv() (string, error) {
	_ = godotenv.Load() // best-effort
	id := os.Getenv("KIPUBANK_SUPER_ADMIN")
	if id == "" {
		return "", errors.New("KIPUBANK_SUPER_ADMIN not set")
	}
	return id, nil
}
