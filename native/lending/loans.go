package lending

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type priceReading struct {
	price     *uint256.Int
	updatedAt uint64
}

func (r *Registry) readPrice(oracleAddr common.Address, window uint64, feed error) (priceReading, error) {
	resolver, err := r.requireResolver()
	if err != nil {
		return priceReading{}, err
	}
	oracle, err := resolver.Oracle(oracleAddr)
	if err != nil {
		return priceReading{}, fmt.Errorf("lending: oracle %s: %w", oracleAddr.Hex(), err)
	}
	price, updatedAt, err := oracle.LatestPrice()
	if err != nil {
		return priceReading{}, fmt.Errorf("lending: oracle %s: %w", oracleAddr.Hex(), err)
	}
	now := r.now()
	if now > updatedAt && now-updatedAt > window {
		return priceReading{}, &StalePriceError{Feed: feed, UpdatedAt: updatedAt, Now: now, Window: window}
	}
	return priceReading{price: amountOrZero(price), updatedAt: updatedAt}, nil
}

// ceiling returns the largest principal the basket's collateral supports at
// current prices. Callers must hold the registry lock.
func (p *Pool) ceiling(asset AssetEntry, collateral CollateralEntry, token FungibleToken) (*uint256.Int, error) {
	r := p.registry
	assetPrice, err := r.readPrice(asset.Oracle, r.cfg.AssetPriceStaleness, ErrAssetPriceOutdated)
	if err != nil {
		return nil, err
	}
	floorPrice, err := r.readPrice(collateral.Oracle, r.cfg.FloorPriceStaleness, ErrFloorPriceOutdated)
	if err != nil {
		return nil, err
	}
	return loanCeiling(floorPrice.price, assetPrice.price, token.Decimals(), p.floorPricePercent)
}

// MaxLoanAmount quotes the collateral ceiling at current prices, ignoring
// basket liquidity. It fails like CreateLoan when a feed is stale.
func (p *Pool) MaxLoanAmount() (*uint256.Int, error) {
	r := p.registry
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[p.asset]
	if !ok || !asset.Enabled {
		return nil, ErrAssetNotActive
	}
	collateral, ok := r.collaterals[p.collection]
	if !ok || !collateral.Enabled {
		return nil, ErrCollateralNotActive
	}
	token, err := r.token(p.asset)
	if err != nil {
		return nil, err
	}
	return p.ceiling(asset, collateral, token)
}

func (p *Pool) collateralApproved(collection CollateralCollection, owner common.Address, tokenID *uint256.Int) bool {
	return collection.GetApproved(tokenID) == p.address || collection.IsApprovedForAll(owner, p.address)
}

// CreateLoan locks tokenID as collateral and lends amount to caller for the
// tier keyed by duration.
func (p *Pool) CreateLoan(caller common.Address, duration uint64, amount, tokenID *uint256.Int) (uint64, error) {
	r := p.registry
	var loanID uint64
	err := r.exec("create_loan", func(tx *txn) error {
		if r.protocolPaused() {
			return ErrProtocolPaused
		}
		if p.status == PoolStatusPaused {
			return ErrPoolPaused
		}
		asset, ok := r.assets[p.asset]
		if !ok || !asset.Enabled {
			return ErrAssetNotActive
		}
		collateral, ok := r.collaterals[p.collection]
		if !ok || !collateral.Enabled {
			return ErrCollateralNotActive
		}
		if amount == nil || amount.IsZero() {
			return ErrAmountZero
		}
		tier, ok := p.tiers[duration]
		if !ok || !tier.Enabled {
			return ErrInterestTierNotEnabled
		}
		token, err := r.token(p.asset)
		if err != nil {
			return err
		}
		ceiling, err := p.ceiling(asset, collateral, token)
		if err != nil {
			return err
		}
		if amount.Gt(ceiling) {
			return &CeilingExceededError{Requested: cloneAmount(amount), Ceiling: ceiling}
		}
		resolver, err := r.requireResolver()
		if err != nil {
			return err
		}
		collection, err := resolver.Collection(p.collection)
		if err != nil {
			return fmt.Errorf("lending: collection %s: %w", p.collection.Hex(), err)
		}
		if tokenID == nil {
			return ErrNotOwnerOfCollateral
		}
		holder, err := collection.OwnerOf(tokenID)
		if err != nil || holder != caller {
			return ErrNotOwnerOfCollateral
		}
		if !p.collateralApproved(collection, caller, tokenID) {
			return ErrCollateralNotApproved
		}
		if amount.Gt(p.liquidity) {
			return &InsufficientLiquidityError{Requested: cloneAmount(amount), Available: cloneAmount(p.liquidity)}
		}
		if held := token.BalanceOf(p.address); amount.Gt(held) {
			return &InsufficientLiquidityError{Requested: cloneAmount(amount), Available: held}
		}
		if caller == (common.Address{}) {
			return ErrZeroAddress
		}
		claims := r.claims
		if claims == nil {
			return ErrClaimRegistryNotSet
		}

		interest := percentOf(amount, tier.Rate)
		fee := percentOf(amount, asset.PlatformFee)
		now := r.now()

		prevLiquidity := p.liquidity
		p.liquidity = new(uint256.Int).Sub(prevLiquidity, amount)
		prevFees := r.fees[p.asset]
		r.fees[p.asset] = new(uint256.Int).Add(amountOrZero(prevFees), fee)
		lenderClaim := claims.NextID()
		loan := &Loan{
			ID:                p.lastLoanID + 1,
			CollateralTokenID: cloneAmount(tokenID),
			Principal:         cloneAmount(amount),
			AmountPaid:        new(uint256.Int),
			Duration:          duration,
			InterestPercent:   tier.Rate,
			InterestAmount:    interest,
			PlatformFee:       fee,
			LenderClaimID:     lenderClaim,
			BorrowerClaimID:   lenderClaim + 1,
			Status:            LoanStatusActive,
			CreatedAt:         now,
		}
		p.lastLoanID = loan.ID
		p.loans[loan.ID] = loan
		tx.onRollback(func() error {
			p.liquidity = prevLiquidity
			if prevFees == nil {
				delete(r.fees, p.asset)
			} else {
				r.fees[p.asset] = prevFees
			}
			delete(p.loans, loan.ID)
			p.lastLoanID = loan.ID - 1
			return nil
		})
		tx.touchLoan(p, loan)
		tx.touchFees(p.asset)

		approved := collection.GetApproved(tokenID)
		if err := collection.TransferFrom(p.address, caller, p.address, tokenID); err != nil {
			return fmt.Errorf("lending: lock collateral: %w", err)
		}
		tx.onRollback(func() error {
			if err := collection.TransferFrom(p.address, p.address, caller, tokenID); err != nil {
				return err
			}
			if approved == (common.Address{}) {
				return nil
			}
			// The transfer cleared the caller's token approval; put it back.
			return collection.Approve(caller, approved, tokenID)
		})
		if err := claims.MintLender(p.address, p.owner, loan.LenderClaimID, tx.relay()); err != nil {
			return fmt.Errorf("lending: mint lender claim: %w", err)
		}
		tx.onRollback(func() error { return claims.RevertMint(p.address, loan.LenderClaimID) })
		if err := claims.MintBorrower(p.address, caller, loan.BorrowerClaimID, tx.relay()); err != nil {
			return fmt.Errorf("lending: mint borrower claim: %w", err)
		}
		tx.onRollback(func() error { return claims.RevertMint(p.address, loan.BorrowerClaimID) })
		if !fee.IsZero() {
			if err := token.Transfer(p.address, r.address, fee); err != nil {
				return fmt.Errorf("lending: sweep platform fee: %w", err)
			}
			tx.onRollback(func() error { return token.Transfer(r.address, p.address, fee) })
		}
		net := new(uint256.Int).Sub(amount, fee)
		if !net.IsZero() {
			if err := token.Transfer(p.address, caller, net); err != nil {
				return fmt.Errorf("lending: disburse principal: %w", err)
			}
		}
		loanID = loan.ID
		tx.emit(newLoanCreatedEvent(p, loan, p.asset, p.collection, caller))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return loanID, nil
}

// claimHolder resolves the holder of claimID and checks it belongs to p.
func (p *Pool) claimHolder(claimID uint64) (common.Address, error) {
	claims := p.registry.claims
	if claims == nil {
		return common.Address{}, ErrClaimRegistryNotSet
	}
	pool, err := claims.PoolOf(claimID)
	if err != nil {
		return common.Address{}, err
	}
	if pool != p.address {
		return common.Address{}, ErrClaimPoolMismatch
	}
	return claims.OwnerOf(claimID)
}

// Pay services loanID on behalf of the borrower claim holder. The transfer
// is capped at what remains owed; any excess in amount is not pulled.
func (p *Pool) Pay(caller common.Address, amount *uint256.Int, loanID uint64) (*uint256.Int, error) {
	r := p.registry
	var paid *uint256.Int
	err := r.exec("pay", func(tx *txn) error {
		loan, ok := p.loans[loanID]
		if !ok {
			return ErrLoanNotFound
		}
		if loan.Status != LoanStatusActive {
			return ErrLoanNotActive
		}
		holder, err := p.claimHolder(loan.BorrowerClaimID)
		if err != nil || holder != caller {
			if errors.Is(err, ErrClaimPoolMismatch) || errors.Is(err, ErrClaimRegistryNotSet) {
				return err
			}
			return ErrNotBorrowerClaimHolder
		}
		if amount == nil || amount.IsZero() {
			return ErrAmountNotPositive
		}
		now := r.now()
		if loan.Expired(now) {
			return ErrLoanExpired
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
		due := loan.Remaining()
		if amount.Lt(due) {
			due = cloneAmount(amount)
		}

		prevPaid := loan.AmountPaid
		prevEscrowed := p.escrowed
		loan.AmountPaid = new(uint256.Int).Add(prevPaid, due)
		tx.onRollback(func() error {
			loan.AmountPaid = prevPaid
			p.escrowed = prevEscrowed
			loan.Status = LoanStatusActive
			loan.ResolvedAt = 0
			return nil
		})
		tx.touchLoan(p, loan)

		if !due.IsZero() {
			if err := token.TransferFrom(p.address, caller, p.address, due); err != nil {
				return fmt.Errorf("lending: collect payment: %w", err)
			}
			tx.onRollback(func() error { return token.Transfer(p.address, caller, due) })
		}
		paid = cloneAmount(due)

		if loan.AmountPaid.Lt(loan.TotalOwed()) {
			p.escrowed = new(uint256.Int).Add(prevEscrowed, due)
			tx.emit(newLoanPaymentEvent(p, loan, caller, due))
			return nil
		}
		p.escrowed = new(uint256.Int).Sub(prevEscrowed, prevPaid)
		loan.Status = LoanStatusRepaid
		loan.ResolvedAt = now
		lender, err := p.claimHolder(loan.LenderClaimID)
		if err != nil {
			return fmt.Errorf("lending: resolve lender claim: %w", err)
		}
		payout := cloneAmount(loan.AmountPaid)
		if err := p.settle(tx, loan, token, caller, lender, payout); err != nil {
			return err
		}
		tx.emit(newLoanResolvedEvent(EventTypeLoanCollateralClaimed, p, loan, caller, payout))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ClaimNFT lets the lender claim holder take the collateral of an expired,
// unpaid loan together with any partial repayments.
func (p *Pool) ClaimNFT(caller common.Address, loanID uint64) error {
	r := p.registry
	return r.exec("claim_nft", func(tx *txn) error {
		loan, ok := p.loans[loanID]
		if !ok {
			return ErrLoanNotFound
		}
		if loan.Status != LoanStatusActive {
			return ErrLoanNotActive
		}
		holder, err := p.claimHolder(loan.LenderClaimID)
		if err != nil || holder != caller {
			if errors.Is(err, ErrClaimPoolMismatch) || errors.Is(err, ErrClaimRegistryNotSet) {
				return err
			}
			return ErrNotLenderClaimHolder
		}
		now := r.now()
		if !loan.Expired(now) {
			return ErrLoanNotExpired
		}
		token, err := r.token(p.asset)
		if err != nil {
			return err
		}
		prevEscrowed := p.escrowed
		payout := cloneAmount(loan.AmountPaid)
		p.escrowed = new(uint256.Int).Sub(prevEscrowed, payout)
		loan.Status = LoanStatusDefaulted
		loan.ResolvedAt = now
		tx.onRollback(func() error {
			p.escrowed = prevEscrowed
			loan.Status = LoanStatusActive
			loan.ResolvedAt = 0
			return nil
		})
		tx.touchLoan(p, loan)
		if err := p.settle(tx, loan, token, caller, caller, payout); err != nil {
			return err
		}
		tx.emit(newLoanResolvedEvent(EventTypeLoanDefaulted, p, loan, caller, payout))
		return nil
	})
}

// settle burns both claims, pays the escrowed payout to payoutTo and
// releases the collateral to collateralTo. The collateral leaves custody
// last; every earlier step registers its compensation on tx.
func (p *Pool) settle(tx *txn, loan *Loan, token FungibleToken, collateralTo, payoutTo common.Address, payout *uint256.Int) error {
	r := p.registry
	resolver, err := r.requireResolver()
	if err != nil {
		return err
	}
	collection, err := resolver.Collection(p.collection)
	if err != nil {
		return fmt.Errorf("lending: collection %s: %w", p.collection.Hex(), err)
	}
	claims := r.claims
	if err := claims.Burn(p.address, loan.LenderClaimID, tx.relay()); err != nil {
		return fmt.Errorf("lending: burn lender claim: %w", err)
	}
	tx.onRollback(func() error { return claims.RevertBurn(p.address, loan.LenderClaimID) })
	if err := claims.Burn(p.address, loan.BorrowerClaimID, tx.relay()); err != nil {
		return fmt.Errorf("lending: burn borrower claim: %w", err)
	}
	tx.onRollback(func() error { return claims.RevertBurn(p.address, loan.BorrowerClaimID) })
	if !payout.IsZero() {
		if err := token.Transfer(p.address, payoutTo, payout); err != nil {
			return fmt.Errorf("lending: release payout: %w", err)
		}
		tx.onRollback(func() error { return token.Transfer(payoutTo, p.address, payout) })
	}
	if err := collection.TransferFrom(p.address, p.address, collateralTo, loan.CollateralTokenID); err != nil {
		return fmt.Errorf("lending: release collateral: %w", err)
	}
	return nil
}
