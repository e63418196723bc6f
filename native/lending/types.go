package lending

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LoanStatus enumerates the lifecycle states of a loan.
type LoanStatus uint8

const (
	LoanStatusActive LoanStatus = iota
	LoanStatusRepaid
	LoanStatusDefaulted
)

func (s LoanStatus) String() string {
	switch s {
	case LoanStatusActive:
		return "active"
	case LoanStatusRepaid:
		return "repaid"
	case LoanStatusDefaulted:
		return "defaulted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the loan can no longer change.
func (s LoanStatus) Terminal() bool { return s == LoanStatusRepaid || s == LoanStatusDefaulted }

// PoolStatus enumerates the basket-level pause state.
type PoolStatus uint8

const (
	PoolStatusActive PoolStatus = iota
	PoolStatusPaused
)

func (s PoolStatus) String() string {
	if s == PoolStatusPaused {
		return "paused"
	}
	return "active"
}

// AssetEntry is a whitelisted fungible asset.
type AssetEntry struct {
	// Asset is the token address used as the entry key.
	Asset common.Address
	// Enabled gates basket creation and every basket operation on the asset.
	Enabled bool
	// PlatformFee is the integer percent of loan principal retained by the
	// protocol at origination.
	PlatformFee uint64
	// Oracle reports the asset price.
	Oracle common.Address
}

// CollateralEntry is a whitelisted non-fungible collateral collection.
type CollateralEntry struct {
	// Collection is the collection address used as the entry key.
	Collection common.Address
	// Enabled gates basket creation and loan origination.
	Enabled bool
	// Oracle reports the collection floor price.
	Oracle common.Address
}

// InterestTier is a duration keyed rate in a basket's table.
type InterestTier struct {
	Duration uint64
	Rate     uint64
	Enabled  bool
}

// PoolParams describes a basket to create.
type PoolParams struct {
	Asset             common.Address
	Collection        common.Address
	FloorPricePercent uint64
	Durations         []uint64
	Rates             []uint64
	AutomaticApproval bool
	AcceptRefinance   bool
}

// Loan is a single collateralised position inside a basket.
type Loan struct {
	ID uint64
	// CollateralTokenID identifies the locked token in the basket collection.
	CollateralTokenID *uint256.Int
	// Principal is the gross amount taken out of basket liquidity.
	Principal *uint256.Int
	// AmountPaid grows monotonically through Pay.
	AmountPaid *uint256.Int
	// Duration is the tier key selected at origination.
	Duration uint64
	// InterestPercent is snapshotted from the tier at origination.
	InterestPercent uint64
	InterestAmount  *uint256.Int
	PlatformFee     *uint256.Int
	BorrowerClaimID uint64
	LenderClaimID   uint64
	Status          LoanStatus
	CreatedAt       uint64
	ResolvedAt      uint64
}

// TotalOwed returns principal plus interest.
func (l *Loan) TotalOwed() *uint256.Int {
	if l == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Add(amountOrZero(l.Principal), amountOrZero(l.InterestAmount))
}

// Remaining returns what is still owed, never negative.
func (l *Loan) Remaining() *uint256.Int {
	owed := l.TotalOwed()
	paid := amountOrZero(l.AmountPaid)
	if paid.Cmp(owed) >= 0 {
		return new(uint256.Int)
	}
	return owed.Sub(owed, paid)
}

// Expires returns the last timestamp at which the loan can still be paid.
func (l *Loan) Expires() uint64 {
	if l == nil {
		return 0
	}
	return l.CreatedAt + l.Duration
}

// Expired reports whether now is past the loan term.
func (l *Loan) Expired(now uint64) bool { return now > l.Expires() }

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.CollateralTokenID = cloneAmount(l.CollateralTokenID)
	clone.Principal = cloneAmount(l.Principal)
	clone.AmountPaid = cloneAmount(l.AmountPaid)
	clone.InterestAmount = cloneAmount(l.InterestAmount)
	clone.PlatformFee = cloneAmount(l.PlatformFee)
	return &clone
}

// ProtocolParams is the read model returned by Registry.ProtocolParams.
type ProtocolParams struct {
	Paused              bool
	PlatformFee         uint64
	AssetEnabled        bool
	FloorPriceStaleness uint64
	AssetPriceStaleness uint64
	CollateralEnabled   bool
	AssetOracle         common.Address
	CollateralOracle    common.Address
}

// PoolInfo is a point-in-time snapshot of a basket.
type PoolInfo struct {
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
	LoanCount         uint64
}

func sortedTiers(tiers map[uint64]InterestTier) []InterestTier {
	out := make([]InterestTier, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, tier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration < out[j].Duration })
	return out
}
