package health_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/vaultworks/cellar/internal/health"
	"github.com/vaultworks/cellar/internal/markets"
)

func position(denom string, collateral, borrow int64, factor string, price string, decimals int) markets.MarketPosition {
	return markets.MarketPosition{
		Denom:             denom,
		CollateralBalance: sdkmath.NewInt(collateral),
		ExchangeRate:      sdkmath.LegacyOneDec(),
		CollateralFactor:  sdkmath.LegacyMustNewDecFromStr(factor),
		BorrowBalance:     sdkmath.NewInt(borrow),
		PriceUSD:          sdkmath.LegacyMustNewDecFromStr(price),
		Decimals:          decimals,
	}
}

func TestEvaluateNoDebtIsInfinite(t *testing.T) {
	positions := []markets.MarketPosition{
		position("uusdc", 50_000_000, 0, "0.93", "1.0", 6),
	}

	_, hasDebt, err := health.Evaluate(positions)
	require.NoError(t, err)
	require.False(t, hasDebt)
}

func TestEvaluateSingleMarket(t *testing.T) {
	// 50 USDC collateral at factor 0.93 against a 43.75 USDC borrow:
	// 46.5 / 43.75 = 1.0628...
	positions := []markets.MarketPosition{
		position("uusdc", 50_000_000, 43_750_000, "0.93", "1.0", 6),
	}

	factor, hasDebt, err := health.Evaluate(positions)
	require.NoError(t, err)
	require.True(t, hasDebt)

	f, err := factor.Float64()
	require.NoError(t, err)
	require.InDelta(t, 1.062857, f, 0.000001)
}

func TestEvaluateNormalizesDecimalsBeforeSumming(t *testing.T) {
	// 10 ATOM (6 decimals, $10, factor 0.8) pledged against a 40 USDC
	// borrow: 80 / 40 = 2. If decimals were normalized after summing the
	// mixed-denom terms, this number would be garbage.
	positions := []markets.MarketPosition{
		position("uatom", 10_000_000, 0, "0.80", "10.0", 6),
		position("uusdc", 0, 40_000_000, "0.93", "1.0", 6),
	}

	factor, hasDebt, err := health.Evaluate(positions)
	require.NoError(t, err)
	require.True(t, hasDebt)
	require.True(t, factor.Equal(sdkmath.LegacyNewDec(2)), "got %s", factor)
}

func TestEvaluateAppliesExchangeRate(t *testing.T) {
	pos := position("uusdc", 100_000_000, 50_000_000, "1.0", "1.0", 6)
	pos.ExchangeRate = sdkmath.LegacyMustNewDecFromStr("1.10")

	factor, hasDebt, err := health.Evaluate([]markets.MarketPosition{pos})
	require.NoError(t, err)
	require.True(t, hasDebt)
	require.True(t, factor.Equal(sdkmath.LegacyMustNewDecFromStr("2.2")), "got %s", factor)
}

func TestEvaluateRejectsInvalidDecimals(t *testing.T) {
	pos := position("uusdc", 1_000_000, 0, "0.93", "1.0", 19)

	_, _, err := health.Evaluate([]markets.MarketPosition{pos})
	require.ErrorIs(t, err, health.ErrInvalidDecimals)
}

func TestEvaluateRejectsNilBalances(t *testing.T) {
	pos := position("uusdc", 1_000_000, 0, "0.93", "1.0", 6)
	pos.BorrowBalance = sdkmath.Int{}

	_, _, err := health.Evaluate([]markets.MarketPosition{pos})
	require.ErrorIs(t, err, health.ErrNilBalance)
}

func TestMeetsMinimumIsStrictlyGreaterThan(t *testing.T) {
	minimum := sdkmath.LegacyMustNewDecFromStr("1.05")

	// Exactly 1.05: 105 collateral at factor 1 against 100 debt.
	exactly := []markets.MarketPosition{
		position("uusdc", 105_000_000, 100_000_000, "1.0", "1.0", 6),
	}
	ok, err := health.MeetsMinimum(exactly, minimum)
	require.NoError(t, err)
	require.False(t, ok, "health factor equal to the minimum must fail")

	above := []markets.MarketPosition{
		position("uusdc", 106_000_000, 100_000_000, "1.0", "1.0", 6),
	}
	ok, err = health.MeetsMinimum(above, minimum)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMeetsMinimumZeroDebtAlwaysPasses(t *testing.T) {
	positions := []markets.MarketPosition{
		position("uusdc", 1, 0, "0.93", "1.0", 6),
	}

	ok, err := health.MeetsMinimum(positions, sdkmath.LegacyNewDec(1000))
	require.NoError(t, err)
	require.True(t, ok)
}
