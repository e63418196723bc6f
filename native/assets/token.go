package assets

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("assets: insufficient balance")
	ErrInsufficientAllowance = errors.New("assets: insufficient allowance")
	ErrInvalidAmount         = errors.New("assets: amount must not be nil")
	ErrZeroAddress           = errors.New("assets: zero address")
	ErrTokenNotFound         = errors.New("assets: token does not exist")
	ErrTokenExists           = errors.New("assets: token already minted")
	ErrNotOwnerOrApproved    = errors.New("assets: caller is not owner nor approved")
	ErrInvalidPrice          = errors.New("assets: price must not be nil")
)

// Token is an in-memory fungible ledger with explicit allowances.
type Token struct {
	mu         sync.RWMutex
	address    common.Address
	symbol     string
	decimals   uint8
	supply     *uint256.Int
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
}

// NewToken returns an empty ledger for the token at address.
func NewToken(address common.Address, symbol string, decimals uint8) *Token {
	return &Token{
		address:    address,
		symbol:     symbol,
		decimals:   decimals,
		supply:     new(uint256.Int),
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Symbol() string { return t.symbol }

func (t *Token) Decimals() uint8 { return t.decimals }

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.supply)
}

func (t *Token) balance(owner common.Address) *uint256.Int {
	if bal, ok := t.balances[owner]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (t *Token) BalanceOf(owner common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.balance(owner))
}

func (t *Token) allowance(owner, spender common.Address) *uint256.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if v, ok := spenders[spender]; ok {
			return v
		}
	}
	return new(uint256.Int)
}

func (t *Token) Allowance(owner, spender common.Address) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.allowance(owner, spender))
}

// Mint credits amount to to.
func (t *Token) Mint(to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.supply = new(uint256.Int).Add(t.supply, amount)
	t.balances[to] = new(uint256.Int).Add(t.balance(to), amount)
	return nil
}

// Approve sets the allowance of spender over owner's funds.
func (t *Token) Approve(owner, spender common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = new(uint256.Int).Set(amount)
	return nil
}

// Transfer moves amount held by from to to.
func (t *Token) Transfer(from, to common.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.move(from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance.
func (t *Token) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	allowed := t.allowance(from, spender)
	if allowed.Lt(amount) {
		return ErrInsufficientAllowance
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = new(uint256.Int).Sub(allowed, amount)
	return nil
}

func (t *Token) move(from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	fromBal := t.balance(from)
	if fromBal.Lt(amount) {
		return ErrInsufficientBalance
	}
	t.balances[from] = new(uint256.Int).Sub(fromBal, amount)
	t.balances[to] = new(uint256.Int).Add(t.balance(to), amount)
	return nil
}
