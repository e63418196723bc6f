package lending

const (
	// DefaultFloorPriceStaleness is the accepted age, in seconds, of a
	// collateral floor price reading.
	DefaultFloorPriceStaleness uint64 = 60_000
	// DefaultAssetPriceStaleness is the accepted age, in seconds, of an asset
	// price reading.
	DefaultAssetPriceStaleness uint64 = 6_000_000
)

// Config captures the runtime configuration for the lending registry.
type Config struct {
	FloorPriceStaleness uint64 `toml:"FloorPriceStaleness"`
	AssetPriceStaleness uint64 `toml:"AssetPriceStaleness"`
}

// DefaultConfig returns the staleness windows used when none are configured.
func DefaultConfig() Config {
	return Config{
		FloorPriceStaleness: DefaultFloorPriceStaleness,
		AssetPriceStaleness: DefaultAssetPriceStaleness,
	}
}

func (c Config) normalized() Config {
	if c.FloorPriceStaleness == 0 {
		c.FloorPriceStaleness = DefaultFloorPriceStaleness
	}
	if c.AssetPriceStaleness == 0 {
		c.AssetPriceStaleness = DefaultAssetPriceStaleness
	}
	return c
}
