package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Factory deploys baskets on behalf of a single registry. Basket addresses
// are derived from the factory address and the basket identifier, so a
// replayed ledger yields the same addresses.
type Factory struct {
	address  common.Address
	registry common.Address
}

// NewFactory binds a factory at address to the registry at registry.
func NewFactory(address, registry common.Address) *Factory {
	return &Factory{address: address, registry: registry}
}

func (f *Factory) Address() common.Address { return f.address }

func (f *Factory) Registry() common.Address { return f.registry }

// PoolAddress returns the address a basket with id would be deployed at.
func (f *Factory) PoolAddress(id uint64) common.Address {
	return crypto.CreateAddress(f.address, id)
}

// Deploy initialises a basket. Only the bound registry may deploy.
func (f *Factory) Deploy(caller common.Address, registry *Registry, id uint64, owner common.Address, params PoolParams) (*Pool, error) {
	if caller != f.registry || registry == nil || registry.address != f.registry {
		return nil, ErrNotRegistry
	}
	tiers := make(map[uint64]InterestTier, len(params.Durations))
	for i, duration := range params.Durations {
		tiers[duration] = InterestTier{Duration: duration, Rate: params.Rates[i], Enabled: true}
	}
	return &Pool{
		registry:          registry,
		id:                id,
		address:           f.PoolAddress(id),
		owner:             owner,
		asset:             params.Asset,
		collection:        params.Collection,
		floorPricePercent: params.FloorPricePercent,
		tiers:             tiers,
		automaticApproval: params.AutomaticApproval,
		acceptRefinance:   params.AcceptRefinance,
		status:            PoolStatusActive,
		liquidity:         new(uint256.Int),
		escrowed:          new(uint256.Int),
		loans:             make(map[uint64]*Loan),
	}, nil
}
