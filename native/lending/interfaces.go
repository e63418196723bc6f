package lending

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftlend/core/events"
)

// PriceOracle reports the latest price and the unix time it was observed.
type PriceOracle interface {
	LatestPrice() (*uint256.Int, uint64, error)
}

// FungibleToken is the value-transfer surface of a whitelisted asset.
// Transfer moves funds held by from; TransferFrom spends spender's allowance.
type FungibleToken interface {
	Decimals() uint8
	BalanceOf(owner common.Address) *uint256.Int
	Allowance(owner, spender common.Address) *uint256.Int
	Transfer(from, to common.Address, amount *uint256.Int) error
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) error
}

// CollateralCollection is the transfer surface of a non-fungible collection.
type CollateralCollection interface {
	OwnerOf(tokenID *uint256.Int) (common.Address, error)
	GetApproved(tokenID *uint256.Int) common.Address
	IsApprovedForAll(owner, operator common.Address) bool
	Approve(caller, spender common.Address, tokenID *uint256.Int) error
	TransferFrom(operator, from, to common.Address, tokenID *uint256.Int) error
}

// ClaimRegistry mints and burns the receipts that authorise the two sides of
// a loan. Claim identifiers are global and sequential. Mint and burn
// notifications go to sink; the Revert methods undo them silently.
type ClaimRegistry interface {
	NextID() uint64
	AllowedToMint(pool common.Address) bool
	AddToWhitelist(caller, pool common.Address) error
	MintLender(pool, to common.Address, claimID uint64, sink events.Emitter) error
	MintBorrower(pool, to common.Address, claimID uint64, sink events.Emitter) error
	RevertMint(pool common.Address, claimID uint64) error
	Burn(pool common.Address, claimID uint64, sink events.Emitter) error
	RevertBurn(pool common.Address, claimID uint64) error
	OwnerOf(claimID uint64) (common.Address, error)
	PoolOf(claimID uint64) (common.Address, error)
}

// Resolver maps addresses to collaborators.
type Resolver interface {
	Token(addr common.Address) (FungibleToken, error)
	Collection(addr common.Address) (CollateralCollection, error)
	Oracle(addr common.Address) (PriceOracle, error)
	Claims(addr common.Address) (ClaimRegistry, error)
}

// Directory is an in-process Resolver.
type Directory struct {
	mu          sync.RWMutex
	tokens      map[common.Address]FungibleToken
	collections map[common.Address]CollateralCollection
	oracles     map[common.Address]PriceOracle
	claims      map[common.Address]ClaimRegistry
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		tokens:      make(map[common.Address]FungibleToken),
		collections: make(map[common.Address]CollateralCollection),
		oracles:     make(map[common.Address]PriceOracle),
		claims:      make(map[common.Address]ClaimRegistry),
	}
}

func (d *Directory) RegisterToken(addr common.Address, token FungibleToken) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[addr] = token
}

func (d *Directory) RegisterCollection(addr common.Address, collection CollateralCollection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collections[addr] = collection
}

func (d *Directory) RegisterOracle(addr common.Address, oracle PriceOracle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.oracles[addr] = oracle
}

func (d *Directory) RegisterClaims(addr common.Address, claims ClaimRegistry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claims[addr] = claims
}

func (d *Directory) Token(addr common.Address) (FungibleToken, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if token, ok := d.tokens[addr]; ok {
		return token, nil
	}
	return nil, ErrUnknownCollaborator
}

func (d *Directory) Collection(addr common.Address) (CollateralCollection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if collection, ok := d.collections[addr]; ok {
		return collection, nil
	}
	return nil, ErrUnknownCollaborator
}

func (d *Directory) Oracle(addr common.Address) (PriceOracle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if oracle, ok := d.oracles[addr]; ok {
		return oracle, nil
	}
	return nil, ErrUnknownCollaborator
}

func (d *Directory) Claims(addr common.Address) (ClaimRegistry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if claims, ok := d.claims[addr]; ok {
		return claims, nil
	}
	return nil, ErrUnknownCollaborator
}
