package oracle_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/vaultworks/cellar/internal/oracle"
	"github.com/vaultworks/cellar/internal/types"
)

func testTokens() map[string]types.Token {
	return map[string]types.Token{
		"uusdc": {Symbol: "usdc", Denom: "uusdc", Decimals: 6, PriceUSD: sdkmath.LegacyOneDec()},
		"uatom": {Symbol: "atom", Denom: "uatom", Decimals: 6, PriceUSD: sdkmath.LegacyNewDec(10)},
		"awei":  {Symbol: "eth", Denom: "awei", Decimals: 18, PriceUSD: sdkmath.LegacyNewDec(2000)},
	}
}

func TestNewStaticOracleValidatesTable(t *testing.T) {
	_, err := oracle.NewStaticOracle(nil)
	require.Error(t, err)

	_, err = oracle.NewStaticOracle(map[string]types.Token{
		"uusdc": {Denom: "uatom", Decimals: 6, PriceUSD: sdkmath.LegacyOneDec()},
	})
	require.Error(t, err, "key/denom mismatch must be rejected")

	_, err = oracle.NewStaticOracle(map[string]types.Token{
		"uusdc": {Denom: "uusdc", Decimals: 19, PriceUSD: sdkmath.LegacyOneDec()},
	})
	require.Error(t, err)
}

func TestGetValueConvertsAcrossDecimals(t *testing.T) {
	o, err := oracle.NewStaticOracle(testTokens())
	require.NoError(t, err)

	// 1 USDC -> 0.1 ATOM = 100000 base units.
	out, err := o.GetValue("uusdc", sdkmath.NewInt(1_000_000), "uatom")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000), out)

	// 1 ATOM -> 10 USDC.
	out, err = o.GetValue("uatom", sdkmath.NewInt(1_000_000), "uusdc")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(10_000_000), out)

	// 1 ETH (18 decimals) -> 2000 USDC (6 decimals).
	out, err = o.GetValue("awei", sdkmath.NewInt(1_000_000_000_000_000_000), "uusdc")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(2_000_000_000), out)
}

func TestGetValueIdentity(t *testing.T) {
	o, err := oracle.NewStaticOracle(testTokens())
	require.NoError(t, err)

	out, err := o.GetValue("uusdc", sdkmath.NewInt(123_456), "uusdc")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(123_456), out)
}

func TestGetValueZeroAmount(t *testing.T) {
	o, err := oracle.NewStaticOracle(testTokens())
	require.NoError(t, err)

	out, err := o.GetValue("uusdc", sdkmath.ZeroInt(), "uatom")
	require.NoError(t, err)
	require.True(t, out.IsZero())
}

func TestGetValueRejectsBadInputs(t *testing.T) {
	o, err := oracle.NewStaticOracle(testTokens())
	require.NoError(t, err)

	_, err = o.GetValue("uusdc", sdkmath.Int{}, "uatom")
	require.ErrorIs(t, err, oracle.ErrAmountNil)

	_, err = o.GetValue("uusdc", sdkmath.NewInt(-1), "uatom")
	require.ErrorIs(t, err, oracle.ErrAmountNegative)

	_, err = o.GetValue("unknown", sdkmath.OneInt(), "uusdc")
	require.ErrorIs(t, err, types.ErrPricingNotSupported)

	_, err = o.GetValue("uusdc", sdkmath.OneInt(), "unknown")
	require.ErrorIs(t, err, types.ErrPricingNotSupported)
}

func TestIsSupported(t *testing.T) {
	o, err := oracle.NewStaticOracle(testTokens())
	require.NoError(t, err)

	require.True(t, o.IsSupported("uusdc"))
	require.False(t, o.IsSupported("shitcoin"))
}
