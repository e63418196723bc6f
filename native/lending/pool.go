package lending

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool is a basket: an isolated market lending one asset against one
// collateral collection. Its state is guarded by the owning registry's lock.
type Pool struct {
	registry *Registry

	id                uint64
	address           common.Address
	owner             common.Address
	asset             common.Address
	collection        common.Address
	floorPricePercent uint64
	tiers             map[uint64]InterestTier
	automaticApproval bool
	acceptRefinance   bool
	status            PoolStatus
	// liquidity is pooled but unborrowed funds. The basket's token balance
	// additionally holds escrowed repayments on active loans awaiting
	// release to the lender claim holder.
	liquidity  *uint256.Int
	escrowed   *uint256.Int
	loans      map[uint64]*Loan
	lastLoanID uint64
}

func (p *Pool) ID() uint64 { return p.id }

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Owner() common.Address { return p.owner }

func (p *Pool) Asset() common.Address { return p.asset }

func (p *Pool) Collection() common.Address { return p.collection }

// Info returns a snapshot of the basket.
func (p *Pool) Info() PoolInfo {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	return p.info()
}

func (p *Pool) info() PoolInfo {
	return PoolInfo{
		ID:                p.id,
		Address:           p.address,
		Owner:             p.owner,
		Asset:             p.asset,
		Collection:        p.collection,
		FloorPricePercent: p.floorPricePercent,
		Tiers:             sortedTiers(p.tiers),
		Liquidity:         new(uint256.Int).Set(p.liquidity),
		Escrowed:          new(uint256.Int).Set(p.escrowed),
		Status:            p.status,
		AutomaticApproval: p.automaticApproval,
		AcceptRefinance:   p.acceptRefinance,
		LoanCount:         p.lastLoanID,
	}
}

// Liquidity returns the pooled, unborrowed balance.
func (p *Pool) Liquidity() *uint256.Int {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	return new(uint256.Int).Set(p.liquidity)
}

// Escrowed returns repayments held for active loans.
func (p *Pool) Escrowed() *uint256.Int {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	return new(uint256.Int).Set(p.escrowed)
}

func (p *Pool) Status() PoolStatus {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	return p.status
}

// Tier returns the interest tier for duration.
func (p *Pool) Tier(duration uint64) (InterestTier, bool) {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	tier, ok := p.tiers[duration]
	return tier, ok
}

// Loan returns a copy of the loan with the given identifier.
func (p *Pool) Loan(id uint64) (*Loan, error) {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	loan, ok := p.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return loan.Clone(), nil
}

// Loans returns copies of every loan ordered by identifier.
func (p *Pool) Loans() []*Loan {
	p.registry.mu.RLock()
	defer p.registry.mu.RUnlock()
	out := make([]*Loan, 0, len(p.loans))
	for _, loan := range p.loans {
		out = append(out, loan.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DepositLiquidity pulls amount of the basket asset from caller into the
// basket. A basket-level pause does not block deposits.
func (p *Pool) DepositLiquidity(caller common.Address, amount *uint256.Int) error {
	r := p.registry
	return r.exec("deposit_liquidity", func(tx *txn) error {
		if r.protocolPaused() {
			return ErrProtocolPaused
		}
		if amount == nil || amount.IsZero() {
			return ErrAmountZero
		}
		if entry, ok := r.assets[p.asset]; !ok || !entry.Enabled {
			return ErrAssetNotActive
		}
		token, err := r.token(p.asset)
		if err != nil {
			return err
		}
		if token.BalanceOf(caller).Lt(amount) {
			return ErrInsufficientBalance
		}
		if token.Allowance(caller, p.address).Lt(amount) {
			return ErrInsufficientAllowance
		}
		previous := p.liquidity
		p.liquidity = new(uint256.Int).Add(previous, amount)
		tx.onRollback(func() error {
			p.liquidity = previous
			return nil
		})
		tx.touchPool(p)
		if err := token.TransferFrom(p.address, caller, p.address, amount); err != nil {
			return fmt.Errorf("lending: deposit: %w", err)
		}
		tx.emit(newPoolEvent(EventTypePoolDeposit, p, map[string]string{
			"depositor": addr(caller),
			"amount":    amount.Dec(),
			"liquidity": p.liquidity.Dec(),
		}))
		return nil
	})
}

// WithdrawLiquidity sends the whole liquidity balance to to. The basket must
// be paused unless the protocol itself is paused.
func (p *Pool) WithdrawLiquidity(caller, to common.Address) (*uint256.Int, error) {
	r := p.registry
	var withdrawn *uint256.Int
	err := r.exec("withdraw_liquidity", func(tx *txn) error {
		if caller != p.owner {
			return ErrNotBasketOwner
		}
		if to == (common.Address{}) {
			return ErrZeroAddress
		}
		if p.status != PoolStatusPaused && !r.protocolPaused() {
			return ErrPoolNotPaused
		}
		if p.liquidity.IsZero() {
			return ErrNoLiquidity
		}
		token, err := r.token(p.asset)
		if err != nil {
			return err
		}
		amount := p.liquidity
		p.liquidity = new(uint256.Int)
		tx.onRollback(func() error {
			p.liquidity = amount
			return nil
		})
		tx.touchPool(p)
		if err := token.Transfer(p.address, to, amount); err != nil {
			return fmt.Errorf("lending: withdraw liquidity: %w", err)
		}
		withdrawn = new(uint256.Int).Set(amount)
		tx.emit(newPoolEvent(EventTypePoolWithdraw, p, map[string]string{
			"to":     addr(to),
			"amount": amount.Dec(),
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// PauseBasket stops loan origination on the basket.
func (p *Pool) PauseBasket(caller common.Address) error {
	return p.setStatus(caller, PoolStatusPaused)
}

// ActivateBasket resumes loan origination on the basket.
func (p *Pool) ActivateBasket(caller common.Address) error {
	return p.setStatus(caller, PoolStatusActive)
}

func (p *Pool) setStatus(caller common.Address, status PoolStatus) error {
	return p.registry.exec("set_basket_status", func(tx *txn) error {
		if caller != p.owner {
			return ErrNotBasketOwner
		}
		if p.status == status {
			if status == PoolStatusPaused {
				return ErrPoolPaused
			}
			return ErrPoolNotPaused
		}
		previous := p.status
		p.status = status
		tx.onRollback(func() error {
			p.status = previous
			return nil
		})
		tx.touchPool(p)
		tx.emit(newPoolEvent(EventTypePoolStatusChanged, p, map[string]string{
			"status": strconv.FormatUint(uint64(status), 10),
		}))
		return nil
	})
}

// UpdateInterestRates adds or updates the tier for duration. Existing loans
// keep the rate they were originated with.
func (p *Pool) UpdateInterestRates(caller common.Address, duration, rate uint64, enabled bool) error {
	r := p.registry
	return r.exec("update_interest_rates", func(tx *txn) error {
		if caller != p.owner {
			return ErrNotBasketOwner
		}
		if r.protocolPaused() {
			return ErrProtocolPaused
		}
		if duration == 0 {
			return ErrDurationZero
		}
		if rate == 0 || rate > percentDenominator {
			return ErrRateOutOfRange
		}
		previous, existed := p.tiers[duration]
		p.tiers[duration] = InterestTier{Duration: duration, Rate: rate, Enabled: enabled}
		tx.onRollback(func() error {
			if existed {
				p.tiers[duration] = previous
			} else {
				delete(p.tiers, duration)
			}
			return nil
		})
		tx.touchPool(p)
		tx.emit(newPoolEvent(EventTypeInterestRateUpdated, p, map[string]string{
			"duration": u64(duration),
			"rate":     u64(rate),
			"enabled":  strconv.FormatBool(enabled),
		}))
		return nil
	})
}

// PoolRecord is the persisted form of a basket.
type PoolRecord struct {
	ID                uint64
	Address           common.Address
	Owner             common.Address
	Asset             common.Address
	Collection        common.Address
	FloorPricePercent uint64
	Tiers             []InterestTier
	Liquidity         *uint256.Int
	Escrowed          *uint256.Int
	Status            PoolStatus
	AutomaticApproval bool
	AcceptRefinance   bool
	LastLoanID        uint64
}

func (p *Pool) snapshot() *PoolRecord {
	return &PoolRecord{
		ID:                p.id,
		Address:           p.address,
		Owner:             p.owner,
		Asset:             p.asset,
		Collection:        p.collection,
		FloorPricePercent: p.floorPricePercent,
		Tiers:             sortedTiers(p.tiers),
		Liquidity:         new(uint256.Int).Set(p.liquidity),
		Escrowed:          new(uint256.Int).Set(p.escrowed),
		Status:            p.status,
		AutomaticApproval: p.automaticApproval,
		AcceptRefinance:   p.acceptRefinance,
		LastLoanID:        p.lastLoanID,
	}
}
