package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"presale/crypto"

	"github.com/BurntSushi/toml"
)

// PaymentAsset declares a payment token accepted at boot, together with the
// initial exchange rate: PartsSell units of the asset buy PartsMint reward
// tokens. Holders seeds the asset ledger with the accounts that bring funds
// into the sale.
type PaymentAsset struct {
	Symbol    string           `toml:"Symbol"`
	Address   string           `toml:"Address"`
	PartsSell uint64           `toml:"PartsSell"`
	PartsMint uint64           `toml:"PartsMint"`
	Holders   []GenesisAccount `toml:"Holders"`
}

// GenesisAccount seeds a native balance on first boot. Amount is a base-10
// big integer string.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	NetworkName          string `toml:"NetworkName"`
	LogFile              string `toml:"LogFile"`
	OwnerAddress         string `toml:"OwnerAddress"`
	TokenCap             string `toml:"TokenCap"`
	SaleDurationDays     uint64 `toml:"SaleDurationDays"`
	MintTimeLimitMinutes uint64 `toml:"MintTimeLimitMinutes"`

	NativePartsSell uint64 `toml:"NativePartsSell"`
	NativePartsMint uint64 `toml:"NativePartsMint"`

	PaymentAssets []PaymentAsset   `toml:"PaymentAssets"`
	Genesis       []GenesisAccount `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "presale-local"
	}
	if cfg.PaymentAssets == nil {
		cfg.PaymentAssets = []PaymentAsset{}
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []GenesisAccount{}
	}

	return cfg, nil
}

// Validate checks the fields the daemon cannot start without. It is separate
// from Load so a freshly written default file can be inspected and completed
// by the operator before the first real boot.
func (c *Config) Validate() error {
	if _, err := crypto.DecodeAddress(c.OwnerAddress); err != nil {
		return fmt.Errorf("config: OwnerAddress: %w", err)
	}
	if _, err := c.Cap(); err != nil {
		return err
	}
	if c.SaleDurationDays == 0 {
		return fmt.Errorf("config: SaleDurationDays must be positive")
	}
	for i := range c.PaymentAssets {
		asset := &c.PaymentAssets[i]
		if _, err := crypto.DecodeAddress(asset.Address); err != nil {
			return fmt.Errorf("config: PaymentAssets[%d].Address: %w", i, err)
		}
		if asset.PartsSell == 0 || asset.PartsMint == 0 {
			return fmt.Errorf("config: PaymentAssets[%d]: rate parts must be positive", i)
		}
		for j := range asset.Holders {
			holder := &asset.Holders[j]
			if _, err := crypto.DecodeAddress(holder.Address); err != nil {
				return fmt.Errorf("config: PaymentAssets[%d].Holders[%d].Address: %w", i, j, err)
			}
			if _, ok := new(big.Int).SetString(strings.TrimSpace(holder.Amount), 10); !ok {
				return fmt.Errorf("config: PaymentAssets[%d].Holders[%d].Amount is not a base-10 integer", i, j)
			}
		}
	}
	if (c.NativePartsSell == 0) != (c.NativePartsMint == 0) {
		return fmt.Errorf("config: native rate parts must both be set or both be zero")
	}
	for i := range c.Genesis {
		if _, err := crypto.DecodeAddress(c.Genesis[i].Address); err != nil {
			return fmt.Errorf("config: Genesis[%d].Address: %w", i, err)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(c.Genesis[i].Amount), 10); !ok {
			return fmt.Errorf("config: Genesis[%d].Amount is not a base-10 integer", i)
		}
	}
	return nil
}

// Cap parses TokenCap into base units.
func (c *Config) Cap() (*big.Int, error) {
	cap, ok := new(big.Int).SetString(strings.TrimSpace(c.TokenCap), 10)
	if !ok || cap.Sign() <= 0 {
		return nil, fmt.Errorf("config: TokenCap must be a positive base-10 integer")
	}
	return cap, nil
}

// createDefault creates and saves a default configuration file. OwnerAddress
// is intentionally left empty; Validate rejects the file until the operator
// fills it in.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:       ":8080",
		DataDir:          "./presale-data",
		NetworkName:      "presale-local",
		TokenCap:         "10000000000000000", // 10M tokens at 9 decimals
		SaleDurationDays: 60,
		PaymentAssets:    []PaymentAsset{},
		Genesis:          []GenesisAccount{},
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
