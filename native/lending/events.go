package lending

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nftlend/core/types"
)

const (
	EventTypeAssetWhitelistChanged      = "lending.asset.whitelist_changed"
	EventTypeCollateralWhitelistChanged = "lending.collateral.whitelist_changed"
	EventTypePoolCreated                = "lending.pool.created"
	EventTypeProtocolPaused             = "lending.protocol.paused"
	EventTypeProtocolUnpaused           = "lending.protocol.unpaused"
	EventTypeFeesWithdrawn              = "lending.fees.withdrawn"
	EventTypeClaimRegistryUpdated       = "lending.claim_registry.updated"
	EventTypeFloorStalenessUpdated      = "lending.staleness.floor_updated"
	EventTypeAssetStalenessUpdated      = "lending.staleness.asset_updated"
	EventTypeFactoryUpdated             = "lending.factory.updated"
	EventTypeOwnershipTransferred       = "lending.ownership.transferred"
	EventTypePoolDeposit                = "lending.pool.deposit"
	EventTypePoolWithdraw               = "lending.pool.withdraw"
	EventTypePoolStatusChanged          = "lending.pool.status_changed"
	EventTypeInterestRateUpdated        = "lending.pool.interest_rate_updated"
	EventTypeLoanCreated                = "lending.loan.created"
	EventTypeLoanPayment                = "lending.loan.payment"
	EventTypeLoanCollateralClaimed      = "lending.loan.collateral_claimed"
	EventTypeLoanDefaulted              = "lending.loan.defaulted"
)

// Attribute keys shared by consumers that index events.
const (
	AttributePoolID = "poolId"
	AttributePool   = "pool"
	AttributeLoanID = "loanId"
)

type lendingEvent struct {
	evt *types.Event
}

func (e lendingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lendingEvent) Event() *types.Event { return e.evt }

func addr(a common.Address) string { return a.Hex() }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func joinU64(values []uint64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = u64(v)
	}
	return strings.Join(parts, ",")
}

func newAssetWhitelistEvent(entry AssetEntry) *types.Event {
	return &types.Event{
		Type: EventTypeAssetWhitelistChanged,
		Attributes: map[string]string{
			"asset":       addr(entry.Asset),
			"enabled":     strconv.FormatBool(entry.Enabled),
			"platformFee": u64(entry.PlatformFee),
			"oracle":      addr(entry.Oracle),
		},
	}
}

func newCollateralWhitelistEvent(entry CollateralEntry) *types.Event {
	return &types.Event{
		Type: EventTypeCollateralWhitelistChanged,
		Attributes: map[string]string{
			"collection": addr(entry.Collection),
			"enabled":    strconv.FormatBool(entry.Enabled),
			"oracle":     addr(entry.Oracle),
		},
	}
}

func newPoolCreatedEvent(p *Pool, params PoolParams) *types.Event {
	return &types.Event{
		Type: EventTypePoolCreated,
		Attributes: map[string]string{
			AttributePoolID:     u64(p.id),
			AttributePool:       addr(p.address),
			"owner":             addr(p.owner),
			"asset":             addr(params.Asset),
			"collection":        addr(params.Collection),
			"floorPricePercent": u64(params.FloorPricePercent),
			"durations":         joinU64(params.Durations),
			"rates":             joinU64(params.Rates),
			"automaticApproval": strconv.FormatBool(params.AutomaticApproval),
			"acceptRefinance":   strconv.FormatBool(params.AcceptRefinance),
		},
	}
}

func newProtocolPauseEvent(paused bool, by common.Address) *types.Event {
	eventType := EventTypeProtocolUnpaused
	if paused {
		eventType = EventTypeProtocolPaused
	}
	return &types.Event{Type: eventType, Attributes: map[string]string{"by": addr(by)}}
}

func newFeesWithdrawnEvent(asset, to common.Address, amount *uint256.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFeesWithdrawn,
		Attributes: map[string]string{
			"asset":  addr(asset),
			"to":     addr(to),
			"amount": decString(amount),
		},
	}
}

func newAddressUpdatedEvent(eventType, key string, value common.Address) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{key: addr(value)}}
}

func newStalenessEvent(eventType string, window uint64) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{"window": u64(window)}}
}

func newOwnershipEvent(previous, next common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeOwnershipTransferred,
		Attributes: map[string]string{
			"previousOwner": addr(previous),
			"newOwner":      addr(next),
		},
	}
}

func newPoolEvent(eventType string, p *Pool, extra map[string]string) *types.Event {
	attrs := map[string]string{
		AttributePoolID: u64(p.id),
		AttributePool:   addr(p.address),
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newLoanCreatedEvent(p *Pool, loan *Loan, asset, collection, borrower common.Address) *types.Event {
	return newPoolEvent(EventTypeLoanCreated, p, map[string]string{
		AttributeLoanID:     u64(loan.ID),
		"asset":             addr(asset),
		"collection":        addr(collection),
		"collateralTokenId": decString(loan.CollateralTokenID),
		"borrower":          addr(borrower),
		"lender":            addr(p.owner),
		"duration":          u64(loan.Duration),
		"interestPercent":   u64(loan.InterestPercent),
		"amount":            decString(loan.Principal),
		"interest":          decString(loan.InterestAmount),
		"platformFee":       decString(loan.PlatformFee),
		"lenderClaimId":     u64(loan.LenderClaimID),
		"borrowerClaimId":   u64(loan.BorrowerClaimID),
	})
}

func newLoanPaymentEvent(p *Pool, loan *Loan, payer common.Address, amount *uint256.Int) *types.Event {
	return newPoolEvent(EventTypeLoanPayment, p, map[string]string{
		AttributeLoanID: u64(loan.ID),
		"payer":         addr(payer),
		"amount":        decString(amount),
		"remaining":     decString(loan.Remaining()),
	})
}

func newLoanResolvedEvent(eventType string, p *Pool, loan *Loan, claimedBy common.Address, payout *uint256.Int) *types.Event {
	return newPoolEvent(eventType, p, map[string]string{
		AttributeLoanID:     u64(loan.ID),
		"claimedBy":         addr(claimedBy),
		"collateralTokenId": decString(loan.CollateralTokenID),
		"payout":            decString(payout),
		"status":            loan.Status.String(),
	})
}
