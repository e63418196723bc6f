package claims

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nftlend/core/events"
	"nftlend/core/types"
)

var (
	ErrNotRegistry        = errors.New("claims: caller is not the lending registry")
	ErrNotAllowedToMint   = errors.New("claims: basket not allowed to mint")
	ErrUnexpectedClaimID  = errors.New("claims: claim id out of sequence")
	ErrClaimNotFound      = errors.New("claims: claim not found")
	ErrWrongPool          = errors.New("claims: claim minted by another basket")
	ErrZeroAddress        = errors.New("claims: zero address")
	ErrNotOwnerOrApproved = errors.New("claims: caller is not owner nor approved")
)

const (
	EventTypeClaimMinted      = "claims.minted"
	EventTypeClaimBurned      = "claims.burned"
	EventTypeClaimTransferred = "claims.transferred"
	EventTypeMinterAllowed    = "claims.minter_allowed"
)

// Role distinguishes the two receipts minted per loan.
type Role uint8

const (
	RoleLender Role = iota + 1
	RoleBorrower
)

func (r Role) String() string {
	switch r {
	case RoleLender:
		return "lender"
	case RoleBorrower:
		return "borrower"
	default:
		return "unknown"
	}
}

// Claim is a transferable receipt. Holding it is the sole credential for
// acting on its side of the loan.
type Claim struct {
	ID       uint64
	Owner    common.Address
	Pool     common.Address
	Role     Role
	Approved common.Address
}

type claimEvent struct {
	evt *types.Event
}

func (e claimEvent) EventType() string { return e.evt.Type }
func (e claimEvent) Event() *types.Event { return e.evt }

// Agreement is the claim registry: an owned-token map keyed by a global
// sequential identifier, writable only by whitelisted baskets.
type Agreement struct {
	mu       sync.RWMutex
	address  common.Address
	registry common.Address
	nextID   uint64
	claims   map[uint64]*Claim
	burned   map[uint64]*Claim
	allowed  map[common.Address]bool
	emitter  events.Emitter
}

// NewAgreement returns a claim registry at address whose minter whitelist is
// controlled by the lending registry at registry.
func NewAgreement(address, registry common.Address) *Agreement {
	return &Agreement{
		address:  address,
		registry: registry,
		nextID:   1,
		claims:   make(map[uint64]*Claim),
		burned:   make(map[uint64]*Claim),
		allowed:  make(map[common.Address]bool),
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (a *Agreement) SetEmitter(emitter events.Emitter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

func (a *Agreement) Address() common.Address { return a.address }

func (a *Agreement) emit(eventType string, claim *Claim, extra map[string]string) {
	a.emitTo(a.emitter, eventType, claim, extra)
}

// emitTo sends to sink, falling back to the configured emitter when sink is
// nil. Callers running inside a larger operation pass their own sink so the
// notification is only released if that operation commits.
func (a *Agreement) emitTo(sink events.Emitter, eventType string, claim *Claim, extra map[string]string) {
	if sink == nil {
		sink = a.emitter
	}
	attrs := map[string]string{}
	if claim != nil {
		attrs["claimId"] = strconv.FormatUint(claim.ID, 10)
		attrs["owner"] = claim.Owner.Hex()
		attrs["pool"] = claim.Pool.Hex()
		attrs["role"] = claim.Role.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	sink.Emit(claimEvent{evt: &types.Event{Type: eventType, Attributes: attrs}})
}

// NextID returns the identifier the next mint must use.
func (a *Agreement) NextID() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nextID
}

func (a *Agreement) AllowedToMint(pool common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allowed[pool]
}

// AddToWhitelist allows pool to mint and burn. Only the lending registry may
// call it.
func (a *Agreement) AddToWhitelist(caller, pool common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.registry {
		return ErrNotRegistry
	}
	if pool == (common.Address{}) {
		return ErrZeroAddress
	}
	a.allowed[pool] = true
	a.emit(EventTypeMinterAllowed, nil, map[string]string{"pool": pool.Hex()})
	return nil
}

// MintLender mints the lender receipt claimID to to. Notifications go to
// sink, or to the configured emitter when sink is nil.
func (a *Agreement) MintLender(pool, to common.Address, claimID uint64, sink events.Emitter) error {
	return a.mint(pool, to, claimID, RoleLender, sink)
}

// MintBorrower mints the borrower receipt claimID to to.
func (a *Agreement) MintBorrower(pool, to common.Address, claimID uint64, sink events.Emitter) error {
	return a.mint(pool, to, claimID, RoleBorrower, sink)
}

func (a *Agreement) mint(pool, to common.Address, claimID uint64, role Role, sink events.Emitter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.allowed[pool] {
		return ErrNotAllowedToMint
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if claimID != a.nextID {
		return ErrUnexpectedClaimID
	}
	claim := &Claim{ID: claimID, Owner: to, Pool: pool, Role: role}
	a.claims[claimID] = claim
	a.nextID++
	a.emitTo(sink, EventTypeClaimMinted, claim, nil)
	return nil
}

// RevertMint undoes the most recent mint of pool, rewinding the identifier
// sequence. Nothing is emitted.
func (a *Agreement) RevertMint(pool common.Address, claimID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	claim, ok := a.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if claim.Pool != pool {
		return ErrWrongPool
	}
	if claimID+1 != a.nextID {
		return ErrUnexpectedClaimID
	}
	delete(a.claims, claimID)
	a.nextID--
	return nil
}

// Burn destroys claimID. Only the basket that minted it may burn it.
func (a *Agreement) Burn(pool common.Address, claimID uint64, sink events.Emitter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.allowed[pool] {
		return ErrNotAllowedToMint
	}
	claim, ok := a.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if claim.Pool != pool {
		return ErrWrongPool
	}
	delete(a.claims, claimID)
	a.burned[claimID] = claim
	a.emitTo(sink, EventTypeClaimBurned, claim, nil)
	return nil
}

// RevertBurn reinstates a burned claim with its holder and approval intact.
// Nothing is emitted.
func (a *Agreement) RevertBurn(pool common.Address, claimID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	claim, ok := a.burned[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if claim.Pool != pool {
		return ErrWrongPool
	}
	delete(a.burned, claimID)
	a.claims[claimID] = claim
	return nil
}

func (a *Agreement) OwnerOf(claimID uint64) (common.Address, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	claim, ok := a.claims[claimID]
	if !ok {
		return common.Address{}, ErrClaimNotFound
	}
	return claim.Owner, nil
}

func (a *Agreement) PoolOf(claimID uint64) (common.Address, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	claim, ok := a.claims[claimID]
	if !ok {
		return common.Address{}, ErrClaimNotFound
	}
	return claim.Pool, nil
}

// Claim returns a copy of claimID.
func (a *Agreement) Claim(claimID uint64) (Claim, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	claim, ok := a.claims[claimID]
	if !ok {
		return Claim{}, ErrClaimNotFound
	}
	return *claim, nil
}

// ClaimsOf lists the claims held by owner ordered by identifier.
func (a *Agreement) ClaimsOf(owner common.Address) []Claim {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []Claim
	for _, claim := range a.claims {
		if claim.Owner == owner {
			out = append(out, *claim)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Approve lets spender transfer claimID once.
func (a *Agreement) Approve(caller, spender common.Address, claimID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	claim, ok := a.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if claim.Owner != caller {
		return ErrNotOwnerOrApproved
	}
	claim.Approved = spender
	return nil
}

// Transfer moves claimID to to. The caller must own it or be approved.
func (a *Agreement) Transfer(caller, to common.Address, claimID uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	claim, ok := a.claims[claimID]
	if !ok {
		return ErrClaimNotFound
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if claim.Owner != caller && claim.Approved != caller {
		return ErrNotOwnerOrApproved
	}
	from := claim.Owner
	claim.Owner = to
	claim.Approved = common.Address{}
	a.emit(EventTypeClaimTransferred, claim, map[string]string{"from": from.Hex()})
	return nil
}
