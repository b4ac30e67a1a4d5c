package markets_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/types"
)

func usdc(amount int64) sdk.Coin {
	return sdk.Coin{Denom: "uusdc", Amount: sdkmath.NewInt(amount)}
}

func newLendingEnv(t *testing.T) *markets.Environment {
	t.Helper()
	env := markets.NewEnvironment()
	env.Lending["mainlend"] = markets.NewSimLendingMarket("mainlend", env.Bank, map[string]markets.MarketParams{
		"uusdc": {
			Token:            types.Token{Symbol: "usdc", Denom: "uusdc", Decimals: 6, PriceUSD: sdkmath.LegacyOneDec()},
			CollateralFactor: sdkmath.LegacyMustNewDecFromStr("0.93"),
			ExchangeRate:     sdkmath.LegacyOneDec(),
		},
	})
	return env
}

func TestSnapshotRevertRestoresBankAndProtocols(t *testing.T) {
	env := newLendingEnv(t)
	require.NoError(t, env.Bank.Mint("vault", usdc(100_000_000)))

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)

	snap := env.Snapshot()

	require.NoError(t, market.Supply("vault", "uusdc", sdkmath.NewInt(40_000_000)))
	require.NoError(t, market.EnterMarket("vault", "uusdc"))
	require.Equal(t, sdkmath.NewInt(60_000_000), env.Bank.BalanceOf("vault", "uusdc"))

	require.NoError(t, env.Revert(snap))

	restored, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), env.Bank.BalanceOf("vault", "uusdc"))
	require.True(t, restored.SupplyOf("vault", "uusdc").IsZero())
	require.False(t, restored.InMarket("vault", "uusdc"))
}

func TestCommitKeepsChanges(t *testing.T) {
	env := newLendingEnv(t)
	require.NoError(t, env.Bank.Mint("vault", usdc(100_000_000)))

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)

	snap := env.Snapshot()
	require.NoError(t, market.Supply("vault", "uusdc", sdkmath.NewInt(40_000_000)))
	require.NoError(t, env.Commit(snap))

	kept, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(40_000_000), kept.SupplyOf("vault", "uusdc"))

	// The snapshot handle is consumed either way.
	require.ErrorIs(t, env.Revert(snap), markets.ErrBadSnapshotID)
}

func TestNestedSnapshots(t *testing.T) {
	env := newLendingEnv(t)
	require.NoError(t, env.Bank.Mint("vault", usdc(100_000_000)))

	outer := env.Snapshot()
	require.NoError(t, env.Bank.Transfer("vault", "other", usdc(10_000_000)))

	inner := env.Snapshot()
	require.NoError(t, env.Bank.Transfer("vault", "other", usdc(20_000_000)))

	require.NoError(t, env.Revert(inner))
	require.Equal(t, sdkmath.NewInt(90_000_000), env.Bank.BalanceOf("vault", "uusdc"))

	require.NoError(t, env.Revert(outer))
	require.Equal(t, sdkmath.NewInt(100_000_000), env.Bank.BalanceOf("vault", "uusdc"))
}

func TestExitMarketRefusedWithOutstandingBorrow(t *testing.T) {
	env := newLendingEnv(t)
	require.NoError(t, env.Bank.Mint("vault", usdc(100_000_000)))
	require.NoError(t, env.Bank.Mint("lending/mainlend", usdc(1_000_000_000)))

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)

	require.NoError(t, market.Supply("vault", "uusdc", sdkmath.NewInt(50_000_000)))
	require.NoError(t, market.EnterMarket("vault", "uusdc"))
	require.NoError(t, market.Borrow("vault", "uusdc", sdkmath.NewInt(10_000_000)))

	require.ErrorIs(t, market.ExitMarket("vault", "uusdc"), markets.ErrOutstandingBorrow)

	require.NoError(t, market.Repay("vault", "uusdc", sdkmath.NewInt(10_000_000)))
	require.NoError(t, market.ExitMarket("vault", "uusdc"))
}

func TestEnterMarketTwice(t *testing.T) {
	env := newLendingEnv(t)
	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)

	require.NoError(t, market.EnterMarket("vault", "uusdc"))
	require.ErrorIs(t, market.EnterMarket("vault", "uusdc"), types.ErrAlreadyInMarket)
}
