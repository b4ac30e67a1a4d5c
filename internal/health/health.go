/*

This file contains the cross-protocol health-factor evaluator. Debt-bearing
adaptors call it before and after every mutating action so that no borrow,
collateral withdrawal, or market exit can leave the vault's composite
collateralization below the configured minimum.

Every term is rescaled to one canonical 18-decimal fixed point BEFORE summing.
Different underlyings report balances in different decimal counts, and
collateral and price scaling factors differ by market; normalizing after
summation is how the subtle bugs happen.

*/

package health

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/markets"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidDecimals = errors.New("market decimals are invalid")
	ErrNilBalance      = errors.New("market balance is nil")
)

// Evaluate computes the composite health factor over a set of market
// positions:
//
//	healthFactor = sum(collateral_i * exchangeRate_i * price_i * collateralFactor_i)
//	             / sum(borrow_i * price_i)
//
// The second return is false when total debt is zero, meaning the health
// factor is infinite and any action is safe on this axis.
func Evaluate(positions []markets.MarketPosition) (sdkmath.LegacyDec, bool, error) {
	totalCollateralUSD := sdkmath.LegacyZeroDec()
	totalDebtUSD := sdkmath.LegacyZeroDec()

	for i, pos := range positions {
		if pos.Decimals < 0 || pos.Decimals > 18 {
			return sdkmath.LegacyZeroDec(), false, fmt.Errorf("%w: position %d has %d", ErrInvalidDecimals, i, pos.Decimals)
		}
		if pos.CollateralBalance.IsNil() || pos.BorrowBalance.IsNil() {
			return sdkmath.LegacyZeroDec(), false, fmt.Errorf("%w: position %d", ErrNilBalance, i)
		}

		scale := powTen(pos.Decimals)

		// Risk-adjusted collateral value in USD at 18-decimal precision.
		collateralUSD := sdkmath.LegacyNewDecFromInt(pos.CollateralBalance).
			Quo(scale).
			Mul(pos.ExchangeRate).
			Mul(pos.PriceUSD).
			Mul(pos.CollateralFactor)
		totalCollateralUSD = totalCollateralUSD.Add(collateralUSD)

		// Debt value in USD at the same scale.
		debtUSD := sdkmath.LegacyNewDecFromInt(pos.BorrowBalance).
			Quo(scale).
			Mul(pos.PriceUSD)
		totalDebtUSD = totalDebtUSD.Add(debtUSD)
	}

	if totalDebtUSD.IsZero() {
		return sdkmath.LegacyZeroDec(), false, nil
	}

	return totalCollateralUSD.Quo(totalDebtUSD), true, nil
}

// MeetsMinimum reports whether the composite health factor is strictly above
// the minimum. Zero-debt accounts always pass.
func MeetsMinimum(positions []markets.MarketPosition, minimum sdkmath.LegacyDec) (bool, error) {
	factor, hasDebt, err := Evaluate(positions)
	if err != nil {
		return false, err
	}
	if !hasDebt {
		return true, nil
	}
	return factor.GT(minimum), nil
}

// powTen returns 10^n as a LegacyDec.
func powTen(n int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyOneDec()
	ten := sdkmath.LegacyNewDec(10)
	for i := 0; i < n; i++ {
		factor = factor.Mul(ten)
	}
	return factor
}
