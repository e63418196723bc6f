package config

// Pauses mirrors the module pause switches consulted by the lending registry.
type Pauses struct {
	Lending bool
}

// Token seeds a fungible asset ledger.
type Token struct {
	Address  string `toml:"Address"`
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

// Collection seeds an NFT collection ledger.
type Collection struct {
	Address string `toml:"Address"`
	Name    string `toml:"Name"`
}

// Oracle seeds a price feed. Price is a base-10 integer; UpdatedAt of zero
// means the daemon start time.
type Oracle struct {
	Address   string `toml:"Address"`
	Price     string `toml:"Price"`
	UpdatedAt uint64 `toml:"UpdatedAt"`
}

// AssetListing whitelists a fungible asset on the registry.
type AssetListing struct {
	Asset       string `toml:"Asset"`
	Oracle      string `toml:"Oracle"`
	PlatformFee uint64 `toml:"PlatformFee"`
	Enabled     bool   `toml:"Enabled"`
}

// CollateralListing whitelists an NFT collection on the registry.
type CollateralListing struct {
	Collection string `toml:"Collection"`
	Oracle     string `toml:"Oracle"`
	Enabled    bool   `toml:"Enabled"`
}

// Balance credits Amount of Token to Holder at genesis.
type Balance struct {
	Token  string `toml:"Token"`
	Holder string `toml:"Holder"`
	Amount string `toml:"Amount"`
}

// NFT mints TokenID of Collection to Owner at genesis.
type NFT struct {
	Collection string `toml:"Collection"`
	Owner      string `toml:"Owner"`
	TokenID    string `toml:"TokenID"`
}
