package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftlend/native/lending"
)

// Config is the protocol genesis: the registry identity and the devnet
// ledgers it is bootstrapped against.
type Config struct {
	NetworkName string         `toml:"NetworkName"`
	Registry    string         `toml:"Registry"`
	Owner       string         `toml:"Owner"`
	Claims      string         `toml:"Claims"`
	Lending     lending.Config `toml:"lending"`
	Pauses      Pauses         `toml:"pauses"`

	Tokens      []Token             `toml:"tokens"`
	Collections []Collection        `toml:"collections"`
	Oracles     []Oracle            `toml:"oracles"`
	Assets      []AssetListing      `toml:"assets"`
	Collaterals []CollateralListing `toml:"collaterals"`
	Balances    []Balance           `toml:"balances"`
	NFTs        []NFT               `toml:"nfts"`
}

const (
	defaultNetworkName = "nftlend-local"
	defaultRegistry    = "0x00000000000000000000000000000000000010e0"
	defaultClaims      = "0x00000000000000000000000000000000000010c1"
)

// Load decodes, normalizes and validates the genesis at path. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("genesis %s not found", path)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis %s: unknown key %s", path, undecoded[0].String())
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.NetworkName = strings.TrimSpace(cfg.NetworkName)
	if cfg.NetworkName == "" {
		cfg.NetworkName = defaultNetworkName
	}
	cfg.Registry = strings.TrimSpace(cfg.Registry)
	if cfg.Registry == "" {
		cfg.Registry = defaultRegistry
	}
	cfg.Claims = strings.TrimSpace(cfg.Claims)
	if cfg.Claims == "" {
		cfg.Claims = defaultClaims
	}
	cfg.Owner = strings.TrimSpace(cfg.Owner)
	if cfg.Lending.FloorPriceStaleness == 0 {
		cfg.Lending.FloorPriceStaleness = lending.DefaultFloorPriceStaleness
	}
	if cfg.Lending.AssetPriceStaleness == 0 {
		cfg.Lending.AssetPriceStaleness = lending.DefaultAssetPriceStaleness
	}
	for i := range cfg.Tokens {
		cfg.Tokens[i].Symbol = strings.TrimSpace(cfg.Tokens[i].Symbol)
	}
}

// Save writes cfg as TOML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
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

// Address parses a validated hex address.
func Address(raw string) common.Address {
	return common.HexToAddress(strings.TrimSpace(raw))
}

// Amount parses a base-10 amount. Empty strings are zero.
func Amount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(trimmed)
}
