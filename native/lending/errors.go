package lending

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrorKind classifies a lending failure by cause so transports can map
// failures without enumerating every sentinel.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindAuthorization
	KindStateGate
	KindInputBounds
	KindResource
	KindStaleness
	KindLifecycle
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindStateGate:
		return "state_gate"
	case KindInputBounds:
		return "input_bounds"
	case KindResource:
		return "resource"
	case KindStaleness:
		return "staleness"
	case KindLifecycle:
		return "lifecycle"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a typed lending failure. Sentinels are compared with errors.Is.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string { return "lending: " + e.msg }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrNotOwner                = newError(KindAuthorization, "NotOwner", "caller is not the protocol owner")
	ErrNotBasketOwner          = newError(KindAuthorization, "NotBasketOwner", "caller is not the basket owner")
	ErrNotRegistry             = newError(KindAuthorization, "NotRegistry", "caller is not the protocol registry")
	ErrNotBorrowerClaimHolder  = newError(KindAuthorization, "NotBorrowerClaimHolder", "caller does not hold the borrower claim")
	ErrNotLenderClaimHolder    = newError(KindAuthorization, "NotLenderClaimHolder", "caller does not hold the lender claim")
	ErrNotOwnerOfCollateral    = newError(KindAuthorization, "NotOwnerOfCollateral", "caller does not own the collateral token")
	ErrCollateralNotApproved   = newError(KindAuthorization, "CollateralNotApproved", "basket is not approved to move the collateral token")
	ErrProtocolPaused          = newError(KindStateGate, "ProtocolPaused", "protocol is paused")
	ErrProtocolNotPaused       = newError(KindStateGate, "ProtocolNotPaused", "protocol is not paused")
	ErrPoolPaused              = newError(KindStateGate, "BasketPaused", "basket is paused")
	ErrPoolNotPaused           = newError(KindStateGate, "BasketNotPaused", "basket is not paused")
	ErrAssetNotEnabled         = newError(KindStateGate, "AssetNotEnabled", "asset is not whitelisted")
	ErrCollateralNotEnabled    = newError(KindStateGate, "CollateralNotEnabled", "collateral collection is not whitelisted")
	ErrAssetNotActive          = newError(KindStateGate, "AssetNotActive", "basket asset is disabled")
	ErrCollateralNotActive     = newError(KindStateGate, "CollateralNotActive", "basket collateral collection is disabled")
	ErrInterestTierNotEnabled  = newError(KindStateGate, "InterestTierNotEnabled", "interest tier is not enabled")
	ErrClaimRegistryNotSet     = newError(KindStateGate, "ClaimRegistryNotSet", "claim registry not configured")
	ErrFactoryNotSet           = newError(KindStateGate, "FactoryNotSet", "basket factory not configured")
	ErrDirectoryNotSet         = newError(KindStateGate, "DirectoryNotSet", "asset directory not configured")
	ErrPlatformFeeOutOfRange   = newError(KindInputBounds, "PlatformFeeOutOfRange", "platform fee must be between 1 and 100")
	ErrFloorPercentOutOfRange  = newError(KindInputBounds, "FloorPricePercentOutOfRange", "floor price percent must be between 1 and 100")
	ErrTiersEmpty              = newError(KindInputBounds, "InterestTiersEmpty", "interest tiers must not be empty")
	ErrTierLengthMismatch      = newError(KindInputBounds, "LengthMismatch", "durations and interest rates differ in length")
	ErrTierDurationZero        = newError(KindInputBounds, "TierDurationZero", "tier duration must be positive")
	ErrTierRateZero            = newError(KindInputBounds, "TierRateZero", "tier interest rate must be positive")
	ErrTierRateTooHigh         = newError(KindInputBounds, "TierRateTooHigh", "tier interest rate must not exceed 100")
	ErrDurationZero            = newError(KindInputBounds, "DurationZero", "duration must be positive")
	ErrRateOutOfRange          = newError(KindInputBounds, "RateOutOfRange", "interest rate must be between 1 and 100")
	ErrAmountZero              = newError(KindInputBounds, "AmountZero", "amount must be positive")
	ErrAmountNotPositive       = newError(KindInputBounds, "AmountNotPositive", "payment amount must be positive")
	ErrZeroAddress             = newError(KindInputBounds, "ZeroAddress", "address must not be zero")
	ErrAmountExceedsCeiling    = newError(KindInputBounds, "AmountExceedsCeiling", "amount exceeds collateral ceiling")
	ErrStalenessZero           = newError(KindInputBounds, "StalenessZero", "staleness window must be positive")
	ErrClaimRegistrySelf       = newError(KindInputBounds, "ClaimRegistrySelf", "claim registry must not be the protocol registry")
	ErrInvalidPrice            = newError(KindInputBounds, "InvalidPrice", "oracle reported a zero price")
	ErrDecimalsOutOfRange      = newError(KindInputBounds, "DecimalsOutOfRange", "asset decimals out of range")
	ErrInsufficientBalance     = newError(KindResource, "InsufficientBalance", "insufficient balance")
	ErrInsufficientAllowance   = newError(KindResource, "InsufficientAllowance", "insufficient allowance")
	ErrInsufficientLiquidity   = newError(KindResource, "InsufficientLiquidity", "insufficient basket liquidity")
	ErrNoLiquidity             = newError(KindResource, "NoLiquidity", "basket has no liquidity")
	ErrInsufficientFees        = newError(KindResource, "InsufficientFees", "no fees collected for asset")
	ErrAssetPriceOutdated      = newError(KindStaleness, "AssetPriceOutdated", "asset price is outdated")
	ErrFloorPriceOutdated      = newError(KindStaleness, "FloorPriceOutdated", "floor price is outdated")
	ErrLoanNotActive           = newError(KindLifecycle, "LoanNotActive", "loan is not active")
	ErrLoanExpired             = newError(KindLifecycle, "LoanExpired", "loan has expired")
	ErrLoanNotExpired          = newError(KindLifecycle, "LoanNotExpired", "loan has not expired")
	ErrLoanNotFound            = newError(KindNotFound, "LoanNotFound", "loan not found")
	ErrPoolNotFound            = newError(KindNotFound, "BasketNotFound", "basket not found")
	ErrClaimPoolMismatch       = newError(KindNotFound, "ClaimBasketMismatch", "claim belongs to another basket")
	ErrUnknownCollaborator     = newError(KindNotFound, "UnknownCollaborator", "collaborator not registered")
	ErrFactoryRegistryMismatch = newError(KindInputBounds, "FactoryRegistryMismatch", "factory is bound to another registry")
)

// KindOf reports the category of err, or KindUnknown when err carries no
// lending classification.
func KindOf(err error) ErrorKind {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable error code of err, if any.
func CodeOf(err error) string {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ""
}

// LengthMismatchError reports mismatched tier arrays passed to CreatePool.
type LengthMismatchError struct {
	Durations int
	Rates     int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s (%d, %d)", ErrTierLengthMismatch.Error(), e.Durations, e.Rates)
}

func (e *LengthMismatchError) Unwrap() error { return ErrTierLengthMismatch }

// InsufficientLiquidityError carries the requested and available amounts.
type InsufficientLiquidityError struct {
	Requested *uint256.Int
	Available *uint256.Int
}

func (e *InsufficientLiquidityError) Error() string {
	return fmt.Sprintf("%s: requested %s, available %s", ErrInsufficientLiquidity.Error(), decString(e.Requested), decString(e.Available))
}

func (e *InsufficientLiquidityError) Unwrap() error { return ErrInsufficientLiquidity }

// CeilingExceededError carries the requested amount and the collateral ceiling.
type CeilingExceededError struct {
	Requested *uint256.Int
	Ceiling   *uint256.Int
}

func (e *CeilingExceededError) Error() string {
	return fmt.Sprintf("%s: requested %s, ceiling %s", ErrAmountExceedsCeiling.Error(), decString(e.Requested), decString(e.Ceiling))
}

func (e *CeilingExceededError) Unwrap() error { return ErrAmountExceedsCeiling }

// StalePriceError reports an oracle reading older than the configured window.
type StalePriceError struct {
	Feed      error
	UpdatedAt uint64
	Now       uint64
	Window    uint64
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("%s: updated at %d, now %d, window %d", e.Feed.Error(), e.UpdatedAt, e.Now, e.Window)
}

func (e *StalePriceError) Unwrap() error { return e.Feed }
