package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

func validAddress(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return common.IsHexAddress(trimmed) && common.HexToAddress(trimmed) != (common.Address{})
}

// Validate checks the genesis for internal consistency: every listing must
// reference a declared ledger and every amount must parse.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if !validAddress(cfg.Owner) {
		return fmt.Errorf("owner: invalid address %q", cfg.Owner)
	}
	if !validAddress(cfg.Registry) {
		return fmt.Errorf("registry: invalid address %q", cfg.Registry)
	}
	if !validAddress(cfg.Claims) {
		return fmt.Errorf("claims: invalid address %q", cfg.Claims)
	}
	if Address(cfg.Claims) == Address(cfg.Registry) {
		return fmt.Errorf("claims: must differ from the registry address")
	}

	tokens := make(map[common.Address]struct{}, len(cfg.Tokens))
	for i, token := range cfg.Tokens {
		if !validAddress(token.Address) {
			return fmt.Errorf("tokens[%d]: invalid address %q", i, token.Address)
		}
		if token.Decimals > 77 {
			return fmt.Errorf("tokens[%d]: decimals %d out of range", i, token.Decimals)
		}
		tokens[Address(token.Address)] = struct{}{}
	}
	collections := make(map[common.Address]struct{}, len(cfg.Collections))
	for i, collection := range cfg.Collections {
		if !validAddress(collection.Address) {
			return fmt.Errorf("collections[%d]: invalid address %q", i, collection.Address)
		}
		collections[Address(collection.Address)] = struct{}{}
	}
	oracles := make(map[common.Address]struct{}, len(cfg.Oracles))
	for i, oracle := range cfg.Oracles {
		if !validAddress(oracle.Address) {
			return fmt.Errorf("oracles[%d]: invalid address %q", i, oracle.Address)
		}
		if _, err := Amount(oracle.Price); err != nil {
			return fmt.Errorf("oracles[%d]: price: %w", i, err)
		}
		oracles[Address(oracle.Address)] = struct{}{}
	}

	for i, listing := range cfg.Assets {
		if _, ok := tokens[Address(listing.Asset)]; !ok || !validAddress(listing.Asset) {
			return fmt.Errorf("assets[%d]: unknown token %q", i, listing.Asset)
		}
		if _, ok := oracles[Address(listing.Oracle)]; !ok || !validAddress(listing.Oracle) {
			return fmt.Errorf("assets[%d]: unknown oracle %q", i, listing.Oracle)
		}
		if listing.PlatformFee == 0 || listing.PlatformFee > 100 {
			return fmt.Errorf("assets[%d]: platform fee %d outside 1..100", i, listing.PlatformFee)
		}
	}
	for i, listing := range cfg.Collaterals {
		if _, ok := collections[Address(listing.Collection)]; !ok || !validAddress(listing.Collection) {
			return fmt.Errorf("collaterals[%d]: unknown collection %q", i, listing.Collection)
		}
		if _, ok := oracles[Address(listing.Oracle)]; !ok || !validAddress(listing.Oracle) {
			return fmt.Errorf("collaterals[%d]: unknown oracle %q", i, listing.Oracle)
		}
	}
	for i, balance := range cfg.Balances {
		if _, ok := tokens[Address(balance.Token)]; !ok || !validAddress(balance.Token) {
			return fmt.Errorf("balances[%d]: unknown token %q", i, balance.Token)
		}
		if !validAddress(balance.Holder) {
			return fmt.Errorf("balances[%d]: invalid holder %q", i, balance.Holder)
		}
		if _, err := Amount(balance.Amount); err != nil {
			return fmt.Errorf("balances[%d]: amount: %w", i, err)
		}
	}
	for i, nft := range cfg.NFTs {
		if _, ok := collections[Address(nft.Collection)]; !ok || !validAddress(nft.Collection) {
			return fmt.Errorf("nfts[%d]: unknown collection %q", i, nft.Collection)
		}
		if !validAddress(nft.Owner) {
			return fmt.Errorf("nfts[%d]: invalid owner %q", i, nft.Owner)
		}
		if _, err := Amount(nft.TokenID); err != nil {
			return fmt.Errorf("nfts[%d]: token id: %w", i, err)
		}
	}
	return nil
}
