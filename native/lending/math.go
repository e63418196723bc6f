package lending

import "github.com/holiman/uint256"

const (
	percentDenominator = 100
	// maxAssetDecimals keeps 10^decimals inside 256 bits.
	maxAssetDecimals = 77
)

var hundred = uint256.NewInt(percentDenominator)

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// percentOf returns amount * percent / 100 rounded down.
func percentOf(amount *uint256.Int, percent uint64) *uint256.Int {
	if amount == nil || amount.IsZero() || percent == 0 {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(percent), hundred)
	if overflow {
		// percent is bounded by 100 so the quotient never exceeds amount.
		return new(uint256.Int).Set(amount)
	}
	return out
}

// pow10 returns 10^exp for exp <= maxAssetDecimals.
func pow10(exp uint8) (*uint256.Int, error) {
	if exp > maxAssetDecimals {
		return nil, ErrDecimalsOutOfRange
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp))), nil
}

// loanCeiling converts the collateral floor price into asset units and
// applies the basket's floor percent:
//
//	floor * 10^decimals * percent / (assetPrice * 100)
//
// Both prices must share a quote currency and precision. The result saturates
// at the maximum uint256 when it does not fit.
func loanCeiling(floorPrice, assetPrice *uint256.Int, decimals uint8, percent uint64) (*uint256.Int, error) {
	if assetPrice == nil || assetPrice.IsZero() {
		return nil, ErrInvalidPrice
	}
	if floorPrice == nil || floorPrice.IsZero() || percent == 0 {
		return new(uint256.Int), nil
	}
	scale, err := pow10(decimals)
	if err != nil {
		return nil, err
	}
	saturated := new(uint256.Int).SetAllOne()
	scaled, overflow := new(uint256.Int).MulOverflow(scale, uint256.NewInt(percent))
	if overflow {
		return saturated, nil
	}
	denominator, overflow := new(uint256.Int).MulOverflow(assetPrice, hundred)
	if overflow {
		// assetPrice*100 only overflows for absurd prices; fall back to
		// dividing in two steps.
		step := new(uint256.Int).Div(new(uint256.Int).Set(floorPrice), assetPrice)
		out, of := new(uint256.Int).MulDivOverflow(step, scaled, hundred)
		if of {
			return saturated, nil
		}
		return out, nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(floorPrice, scaled, denominator)
	if overflow {
		return saturated, nil
	}
	return out, nil
}
