// Package money keeps monetary arithmetic in one place.
// Amounts are decimals with two fractional digits, rounded half-up at every computation step.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/apperrors"
)

const Places = 2

// Instructor share of every sold item
var EarningSplit = decimal.RequireFromString("0.5")

// Round to two places, half-up.
// decimal.Round rounds half away from zero: same thing for non-negative amounts.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Split amount into share (amount*ratio rounded) and remainder.
// share + remainder == amount exactly, the rounding difference goes to remainder.
// Amount has to be non-negative with at most two decimal places.
func Split(amount decimal.Decimal, ratio decimal.Decimal) (share decimal.Decimal, remainder decimal.Decimal, err error) {
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("split %s: %w", amount, apperrors.ErrInvalidAmount)
	}
	if !Round(amount).Equal(amount) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("split %s: more than %d decimal places: %w", amount, Places, apperrors.ErrInvalidAmount)
	}
	if ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("split ratio %s: %w", ratio, apperrors.ErrInvalidAmount)
	}

	share = Round(amount.Mul(ratio))
	return share, amount.Sub(share), nil
}

// Positive checks amount may be moved through a wallet
func Positive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s must be positive: %w", amount, apperrors.ErrInvalidAmount)
	}
	if !Round(amount).Equal(amount) {
		return fmt.Errorf("amount %s has more than %d decimal places: %w", amount, Places, apperrors.ErrInvalidAmount)
	}
	return nil
}
