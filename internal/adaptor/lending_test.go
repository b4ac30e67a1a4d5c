package adaptor_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/vaultworks/cellar/internal/adaptor"
	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/types"
)

const vaultAddr = "cellar/TEST"

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
	require.NoError(t, env.Bank.Mint(vaultAddr, sdk.Coin{Denom: "uusdc", Amount: sdkmath.NewInt(100_000_000)}))
	require.NoError(t, env.Bank.Mint("lending/mainlend", sdk.Coin{Denom: "uusdc", Amount: sdkmath.NewInt(1_000_000_000)}))
	return env
}

func callCtx(env *markets.Environment) adaptor.CallContext {
	return adaptor.CallContext{
		Env:                 env,
		VaultAddress:        vaultAddr,
		MinimumHealthFactor: sdkmath.LegacyMustNewDecFromStr("1.05"),
		IsTracked:           func(string, []byte) bool { return true },
	}
}

func TestSupplyWithdrawableZeroWhenPledged(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewLendingSupplyAdaptor()
	config := adaptor.LendingConfig{Market: "mainlend", Denom: "uusdc"}.Encode()

	require.NoError(t, a.Deposit(env, vaultAddr, config, sdkmath.NewInt(50_000_000)))

	avail, err := a.WithdrawableFrom(env, vaultAddr, config)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(50_000_000), avail)

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.NoError(t, market.EnterMarket(vaultAddr, "uusdc"))

	avail, err = a.WithdrawableFrom(env, vaultAddr, config)
	require.NoError(t, err)
	require.True(t, avail.IsZero())
}

func TestCollateralBalanceCountsOnlyWhenEntered(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewCollateralAdaptor(sdkmath.LegacyMustNewDecFromStr("1.05"))
	config := adaptor.LendingConfig{Market: "mainlend", Denom: "uusdc"}.Encode()

	require.NoError(t, a.Deposit(env, vaultAddr, config, sdkmath.NewInt(50_000_000)))

	// Supplied but not pledged: the collateral view reports nothing, the
	// plain supply view owns this balance.
	balance, err := a.BalanceOf(env, vaultAddr, config)
	require.NoError(t, err)
	require.True(t, balance.IsZero())

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.NoError(t, market.EnterMarket(vaultAddr, "uusdc"))

	balance, err = a.BalanceOf(env, vaultAddr, config)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(50_000_000), balance)
}

func TestCollateralWithdrawableZeroWithOutstandingBorrow(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewCollateralAdaptor(sdkmath.LegacyMustNewDecFromStr("1.05"))
	config := adaptor.LendingConfig{Market: "mainlend", Denom: "uusdc"}.Encode()

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.NoError(t, market.Supply(vaultAddr, "uusdc", sdkmath.NewInt(50_000_000)))
	require.NoError(t, market.EnterMarket(vaultAddr, "uusdc"))

	avail, err := a.WithdrawableFrom(env, vaultAddr, config)
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(50_000_000), avail)

	require.NoError(t, market.Borrow(vaultAddr, "uusdc", sdkmath.NewInt(1_000_000)))

	avail, err = a.WithdrawableFrom(env, vaultAddr, config)
	require.NoError(t, err)
	require.True(t, avail.IsZero())
}

func TestEnterMarketTwiceViaStrategistCall(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewCollateralAdaptor(sdkmath.LegacyMustNewDecFromStr("1.05"))
	ctx := callCtx(env)

	call := types.StrategistCall{
		Method: "enter_market",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc"}`),
	}
	require.NoError(t, a.StrategistCall(ctx, call))
	require.ErrorIs(t, a.StrategistCall(ctx, call), types.ErrAlreadyInMarket)
}

func TestBorrowGuardedByHealthFactor(t *testing.T) {
	env := newLendingEnv(t)
	collateral := adaptor.NewCollateralAdaptor(sdkmath.LegacyMustNewDecFromStr("1.05"))
	debt := adaptor.NewDebtAdaptor()
	ctx := callCtx(env)

	require.NoError(t, collateral.StrategistCall(ctx, types.StrategistCall{
		Method: "enter_market",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc"}`),
	}))
	require.NoError(t, collateral.StrategistCall(ctx, types.StrategistCall{
		Method: "add_collateral",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"50000000"}`),
	}))

	// 46.5 risk-adjusted collateral: 43.75 borrowed passes, 44.75 does not.
	require.NoError(t, debt.StrategistCall(ctx, types.StrategistCall{
		Method: "borrow",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"43750000"}`),
	}))
	require.ErrorIs(t, debt.StrategistCall(ctx, types.StrategistCall{
		Method: "borrow",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"1000000"}`),
	}), types.ErrHealthFactorTooLow)
}

func TestRemoveCollateralGuardedByHealthFactor(t *testing.T) {
	env := newLendingEnv(t)
	collateral := adaptor.NewCollateralAdaptor(sdkmath.LegacyMustNewDecFromStr("1.05"))
	debt := adaptor.NewDebtAdaptor()
	ctx := callCtx(env)

	require.NoError(t, collateral.StrategistCall(ctx, types.StrategistCall{
		Method: "enter_market",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc"}`),
	}))
	require.NoError(t, collateral.StrategistCall(ctx, types.StrategistCall{
		Method: "add_collateral",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"50000000"}`),
	}))
	require.NoError(t, debt.StrategistCall(ctx, types.StrategistCall{
		Method: "borrow",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"40000000"}`),
	}))

	// 50 - 4 leaves 42.78 risk-adjusted against 40 borrowed: 1.069, fine.
	require.NoError(t, collateral.StrategistCall(ctx, types.StrategistCall{
		Method: "remove_collateral",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"4000000"}`),
	}))

	// Another 2 would leave 40.92 against 40: 1.023, below the minimum.
	require.ErrorIs(t, collateral.StrategistCall(ctx, types.StrategistCall{
		Method: "remove_collateral",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"2000000"}`),
	}), types.ErrHealthFactorTooLow)
}

func TestDirectCollateralWithdrawEnforcesConfiguredMinimum(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewCollateralAdaptor(sdkmath.LegacyMustNewDecFromStr("1.05"))
	config := adaptor.LendingConfig{Market: "mainlend", Denom: "uusdc"}.Encode()

	market, err := env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.NoError(t, market.Supply(vaultAddr, "uusdc", sdkmath.NewInt(50_000_000)))
	require.NoError(t, market.EnterMarket(vaultAddr, "uusdc"))
	require.NoError(t, market.Borrow(vaultAddr, "uusdc", sdkmath.NewInt(40_000_000)))

	// Withdrawing 6 leaves 44 x 0.93 = 40.92 against 40 borrowed: 1.023.
	// Solvent in absolute terms, but below the configured 1.05 minimum.
	err = a.Withdraw(env, vaultAddr, config, sdkmath.NewInt(6_000_000), vaultAddr)
	require.ErrorIs(t, err, types.ErrHealthFactorTooLow)
}

func TestUntrackedCallRejected(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewLendingSupplyAdaptor()
	ctx := callCtx(env)
	ctx.IsTracked = func(string, []byte) bool { return false }

	err := a.StrategistCall(ctx, types.StrategistCall{
		Method: "deposit",
		Args:   []byte(`{"market":"mainlend","denom":"uusdc","amount":"1000000"}`),
	})
	require.ErrorIs(t, err, types.ErrPositionMustBeTracked)
}

func TestWithdrawToExternalReceiverRejected(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewLendingSupplyAdaptor()
	config := adaptor.LendingConfig{Market: "mainlend", Denom: "uusdc"}.Encode()

	require.NoError(t, a.Deposit(env, vaultAddr, config, sdkmath.NewInt(10_000_000)))

	err := a.Withdraw(env, vaultAddr, config, sdkmath.NewInt(10_000_000), "mallory")
	require.ErrorIs(t, err, types.ErrExternalReceiverBlocked)
}

func TestDebtAdaptorShape(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewDebtAdaptor()
	config := adaptor.LendingConfig{Market: "mainlend", Denom: "uusdc"}.Encode()

	require.True(t, a.IsDebt())

	avail, err := a.WithdrawableFrom(env, vaultAddr, config)
	require.NoError(t, err)
	require.True(t, avail.IsZero())

	require.ErrorIs(t, a.Deposit(env, vaultAddr, config, sdkmath.OneInt()), types.ErrUnknownMethod)
	require.ErrorIs(t, a.Withdraw(env, vaultAddr, config, sdkmath.OneInt(), vaultAddr), types.ErrUnknownMethod)
}

func TestConfigValidation(t *testing.T) {
	env := newLendingEnv(t)
	a := adaptor.NewLendingSupplyAdaptor()

	_, err := a.AssetOf([]byte(`{"market":"mainlend"}`))
	require.ErrorIs(t, err, adaptor.ErrBadConfig)

	_, err = a.BalanceOf(env, vaultAddr, []byte(`not json`))
	require.ErrorIs(t, err, adaptor.ErrBadConfig)
}
