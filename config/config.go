package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"rentchain/native/bank"
)

// Config is the marketplace node configuration, persisted as TOML.
type Config struct {
	DataDir             string   `toml:"DataDir"`
	Environment         string   `toml:"Environment"`
	TreasuryAddress     string   `toml:"TreasuryAddress"`
	InsuranceFund       string   `toml:"InsuranceFund"`
	RentalVault         string   `toml:"RentalVault,omitempty"`
	EscrowVault         string   `toml:"EscrowVault,omitempty"`
	YieldVault          string   `toml:"YieldVault,omitempty"`
	PlatformFeeBps      uint32   `toml:"PlatformFeeBps"`
	TransferFeeBps      uint32   `toml:"TransferFeeBps"`
	InsuranceFundBps    uint32   `toml:"InsuranceFundBps"`
	StrategyCatalogPath string   `toml:"StrategyCatalogPath"`
	Admins              []string `toml:"Admins"`
	Arbitrators         []string `toml:"Arbitrators"`
}

const (
	defaultPlatformFeeBps   uint32 = 300
	defaultTransferFeeBps   uint32 = 200
	defaultInsuranceFundBps uint32 = 500
)

// Load reads the configuration at path, writing the defaults there first when
// the file does not exist yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./rentchain-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.PlatformFeeBps == 0 {
		cfg.PlatformFeeBps = defaultPlatformFeeBps
	}
	if cfg.TransferFeeBps == 0 {
		cfg.TransferFeeBps = defaultTransferFeeBps
	}
	if cfg.InsuranceFundBps == 0 {
		cfg.InsuranceFundBps = defaultInsuranceFundBps
	}
	if cfg.Admins == nil {
		cfg.Admins = []string{}
	}
	if cfg.Arbitrators == nil {
		cfg.Arbitrators = []string{}
	}
}

// Validate checks address fields and fee bounds.
func (cfg *Config) Validate() error {
	required := map[string]string{
		"TreasuryAddress": cfg.TreasuryAddress,
		"InsuranceFund":   cfg.InsuranceFund,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", field)
		}
		if _, err := bank.ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	optional := map[string]string{
		"RentalVault": cfg.RentalVault,
		"EscrowVault": cfg.EscrowVault,
		"YieldVault":  cfg.YieldVault,
	}
	for field, value := range optional {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := bank.ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	for _, bps := range []struct {
		name  string
		value uint32
	}{
		{"PlatformFeeBps", cfg.PlatformFeeBps},
		{"TransferFeeBps", cfg.TransferFeeBps},
		{"InsuranceFundBps", cfg.InsuranceFundBps},
	} {
		if bps.value > 10_000 {
			return fmt.Errorf("%s out of range: %d", bps.name, bps.value)
		}
	}
	for _, entries := range [][]string{cfg.Admins, cfg.Arbitrators} {
		for _, raw := range entries {
			if _, err := bank.ParseAddress(raw); err != nil {
				return fmt.Errorf("role assignment %q: %w", raw, err)
			}
		}
	}
	return nil
}

// Treasury returns the parsed treasury address.
func (cfg *Config) Treasury() ([20]byte, error) {
	return bank.ParseAddress(cfg.TreasuryAddress)
}

// Insurance returns the parsed insurance fund address.
func (cfg *Config) Insurance() ([20]byte, error) {
	return bank.ParseAddress(cfg.InsuranceFund)
}

// Vaults returns the configured vault overrides; a zero value means the
// derived default stays in effect.
func (cfg *Config) Vaults() (rentalVault, escrowVault, yieldVault [20]byte, err error) {
	parse := func(raw string) ([20]byte, error) {
		if strings.TrimSpace(raw) == "" {
			return [20]byte{}, nil
		}
		return bank.ParseAddress(raw)
	}
	if rentalVault, err = parse(cfg.RentalVault); err != nil {
		return
	}
	if escrowVault, err = parse(cfg.EscrowVault); err != nil {
		return
	}
	yieldVault, err = parse(cfg.YieldVault)
	return
}

// RoleGrants returns the parsed admin and arbitrator address lists.
func (cfg *Config) RoleGrants() (admins, arbitrators [][20]byte, err error) {
	for _, raw := range cfg.Admins {
		addr, parseErr := bank.ParseAddress(raw)
		if parseErr != nil {
			return nil, nil, parseErr
		}
		admins = append(admins, addr)
	}
	for _, raw := range cfg.Arbitrators {
		addr, parseErr := bank.ParseAddress(raw)
		if parseErr != nil {
			return nil, nil, parseErr
		}
		arbitrators = append(arbitrators, addr)
	}
	return admins, arbitrators, nil
}

// createDefault writes a usable default configuration. Placeholder platform
// addresses are derived deterministically so a fresh node works out of the
// box; operators should replace them before going live.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:             "./rentchain-data",
		Environment:         "local",
		TreasuryAddress:     "0x" + strings.Repeat("fc", 20),
		InsuranceFund:       "0x" + strings.Repeat("fd", 20),
		PlatformFeeBps:      defaultPlatformFeeBps,
		TransferFeeBps:      defaultTransferFeeBps,
		InsuranceFundBps:    defaultInsuranceFundBps,
		StrategyCatalogPath: "",
		Admins:              []string{},
		Arbitrators:         []string{},
	}
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
