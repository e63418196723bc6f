package assets

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Collection is an in-memory non-fungible ledger with per-token and
// operator approvals.
type Collection struct {
	mu        sync.RWMutex
	address   common.Address
	name      string
	owners    map[uint256.Int]common.Address
	approvals map[uint256.Int]common.Address
	operators map[common.Address]map[common.Address]bool
}

// NewCollection returns an empty collection at address.
func NewCollection(address common.Address, name string) *Collection {
	return &Collection{
		address:   address,
		name:      name,
		owners:    make(map[uint256.Int]common.Address),
		approvals: make(map[uint256.Int]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
	}
}

func (c *Collection) Address() common.Address { return c.address }

func (c *Collection) Name() string { return c.name }

// Mint creates tokenID owned by to.
func (c *Collection) Mint(to common.Address, tokenID *uint256.Int) error {
	if tokenID == nil {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owners[*tokenID]; ok {
		return ErrTokenExists
	}
	c.owners[*tokenID] = to
	return nil
}

func (c *Collection) OwnerOf(tokenID *uint256.Int) (common.Address, error) {
	if tokenID == nil {
		return common.Address{}, ErrTokenNotFound
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[*tokenID]
	if !ok {
		return common.Address{}, ErrTokenNotFound
	}
	return owner, nil
}

func (c *Collection) GetApproved(tokenID *uint256.Int) common.Address {
	if tokenID == nil {
		return common.Address{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approvals[*tokenID]
}

func (c *Collection) IsApprovedForAll(owner, operator common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.operators[owner][operator]
}

// Approve lets spender move tokenID. Only the owner or an operator may
// approve.
func (c *Collection) Approve(caller, spender common.Address, tokenID *uint256.Int) error {
	if tokenID == nil {
		return ErrTokenNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[*tokenID]
	if !ok {
		return ErrTokenNotFound
	}
	if caller != owner && !c.operators[owner][caller] {
		return ErrNotOwnerOrApproved
	}
	c.approvals[*tokenID] = spender
	return nil
}

// SetApprovalForAll toggles operator rights over every token of owner.
func (c *Collection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops, ok := c.operators[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		c.operators[owner] = ops
	}
	if approved {
		ops[operator] = true
		return
	}
	delete(ops, operator)
}

// TransferFrom moves tokenID from from to to on behalf of operator, which
// must be the owner, the approved address or an approved operator.
func (c *Collection) TransferFrom(operator, from, to common.Address, tokenID *uint256.Int) error {
	if tokenID == nil {
		return ErrTokenNotFound
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[*tokenID]
	if !ok {
		return ErrTokenNotFound
	}
	if owner != from {
		return ErrNotOwnerOrApproved
	}
	if operator != owner && c.approvals[*tokenID] != operator && !c.operators[owner][operator] {
		return ErrNotOwnerOrApproved
	}
	c.owners[*tokenID] = to
	delete(c.approvals, *tokenID)
	return nil
}
