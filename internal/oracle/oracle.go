package oracle

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/logger"
	"github.com/vaultworks/cellar/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
	ErrZeroPrice      = errors.New("token price is zero")
)

var oracleLogger = logger.GetForComponent("oracle")

// PriceOracle converts an amount of one fungible asset into the equivalent
// amount of another. The cellar never feeds an adaptor balance into
// arithmetic without a preceding IsSupported check; an unsupported asset is a
// hard failure, not a zero-value fallback.
type PriceOracle interface {
	// GetValue converts amount of assetIn into assetOut units.
	GetValue(assetIn string, amount sdkmath.Int, assetOut string) (sdkmath.Int, error)

	// IsSupported reports whether the oracle can price the asset.
	IsSupported(denom string) bool
}

// StaticOracle prices assets from a fixed token table. Conversion goes
// through an 18-decimal USD intermediate and truncates back to integer base
// units of the output asset.
type StaticOracle struct {
	tokens map[string]types.Token
}

// NewStaticOracle creates an oracle over the given token table, keyed by denom.
func NewStaticOracle(tokens map[string]types.Token) (*StaticOracle, error) {
	if len(tokens) == 0 {
		return nil, errors.New("token table cannot be empty")
	}
	for denom, token := range tokens {
		if token.Denom != denom {
			return nil, fmt.Errorf("token table key %s does not match denom %s", denom, token.Denom)
		}
		if token.Decimals < 0 || token.Decimals > 18 {
			return nil, fmt.Errorf("token %s has invalid decimals: %d", denom, token.Decimals)
		}
		if token.PriceUSD.IsNil() || token.PriceUSD.IsNegative() {
			return nil, fmt.Errorf("token %s has invalid price", denom)
		}
	}
	return &StaticOracle{tokens: tokens}, nil
}

// IsSupported reports whether the denom is in the token table.
func (o *StaticOracle) IsSupported(denom string) bool {
	_, ok := o.tokens[denom]
	return ok
}

// GetValue converts amount of assetIn into base units of assetOut.
func (o *StaticOracle) GetValue(assetIn string, amount sdkmath.Int, assetOut string) (sdkmath.Int, error) {
	if amount.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	in, ok := o.tokens[assetIn]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", types.ErrPricingNotSupported, assetIn)
	}
	out, ok := o.tokens[assetOut]
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", types.ErrPricingNotSupported, assetOut)
	}

	if amount.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if out.PriceUSD.IsZero() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrZeroPrice, assetOut)
	}

	// usd = amount / 10^inDecimals * priceIn
	usd := sdkmath.LegacyNewDecFromInt(amount).
		Quo(powTen(in.Decimals)).
		Mul(in.PriceUSD)

	// out base units = usd / priceOut * 10^outDecimals, truncated
	result := usd.Quo(out.PriceUSD).Mul(powTen(out.Decimals)).TruncateInt()

	oracleLogger.Debug().
		Str("assetIn", assetIn).
		Str("assetOut", assetOut).
		Str("amountIn", amount.String()).
		Str("amountOut", result.String()).
		Msg("Converted asset value")

	return result, nil
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
