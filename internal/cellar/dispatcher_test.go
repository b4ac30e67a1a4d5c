package cellar_test

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/vaultworks/cellar/internal/cellar"
	"github.com/vaultworks/cellar/internal/types"
)

func TestRebalanceLeverageScenario(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	// Pledge half the vault as collateral.
	result, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-collateral/v1",
		Calls: []types.StrategistCall{
			{Method: "enter_market", Args: []byte(`{"market":"mainlend","denom":"uusdc"}`)},
			{Method: "add_collateral", Args: []byte(`{"market":"mainlend","denom":"uusdc","amount":"50000000"}`)},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), result.PreValue)
	require.Equal(t, sdkmath.NewInt(100_000_000), result.PostValue)
	require.Equal(t, 2, result.CallCount)

	// Borrow close to the limit: 46.5 risk-adjusted collateral against a
	// 43.75 borrow is a 1.0628 health factor, just above the 1.05 minimum.
	result, err = f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-debt/v1",
		Calls: []types.StrategistCall{
			{Method: "borrow", Args: []byte(`{"market":"mainlend","denom":"uusdc","amount":"43750000"}`)},
		},
	}})
	require.NoError(t, err)

	// Borrowed cash plus collateral minus debt: total value is unchanged.
	require.Equal(t, sdkmath.NewInt(100_000_000), result.PostValue)
	require.Equal(t, sdkmath.NewInt(93_750_000), f.env.Bank.BalanceOf(f.cl.Address(), "uusdc"))

	main, err := f.env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(43_750_000), main.BorrowOf(f.cl.Address(), "uusdc"))
}

func TestBorrowBeyondHealthFactorRevertsAtomically(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	_, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{
		{
			AdaptorID: "lending-collateral/v1",
			Calls: []types.StrategistCall{
				{Method: "enter_market", Args: []byte(`{"market":"mainlend","denom":"uusdc"}`)},
				{Method: "add_collateral", Args: []byte(`{"market":"mainlend","denom":"uusdc","amount":"50000000"}`)},
			},
		},
		{
			AdaptorID: "lending-debt/v1",
			Calls: []types.StrategistCall{
				{Method: "borrow", Args: []byte(`{"market":"mainlend","denom":"uusdc","amount":"43750000"}`)},
			},
		},
	})
	require.NoError(t, err)

	// One more borrowed USDC drops the ratio to 46.5/44.75 = 1.039.
	_, err = f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-debt/v1",
		Calls: []types.StrategistCall{
			{Method: "borrow", Args: []byte(`{"market":"mainlend","denom":"uusdc","amount":"1000000"}`)},
		},
	}})
	require.ErrorIs(t, err, types.ErrHealthFactorTooLow)

	// The failed batch left no trace.
	main, err := f.env.LendingMarketByID("mainlend")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(43_750_000), main.BorrowOf(f.cl.Address(), "uusdc"))
	require.Equal(t, sdkmath.NewInt(93_750_000), f.env.Bank.BalanceOf(f.cl.Address(), "uusdc"))

	total, err := f.cl.TotalAssets()
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), total)
}

func TestBatchRevertsWhollyOnLateFailure(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	_, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-supply/v1",
		Calls: []types.StrategistCall{
			{Method: "deposit", Args: []byte(`{"market":"sidelend","denom":"uusdc","amount":"30000000"}`)},
			{Method: "does_not_exist"},
		},
	}})
	require.ErrorIs(t, err, types.ErrUnknownMethod)

	// The successful first call was rolled back with the batch.
	side, err := f.env.LendingMarketByID("sidelend")
	require.NoError(t, err)
	require.True(t, side.SupplyOf(f.cl.Address(), "uusdc").IsZero())
	require.Equal(t, sdkmath.NewInt(100_000_000), f.env.Bank.BalanceOf(f.cl.Address(), "uusdc"))
}

func TestUntrackedPositionRejected(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	// mainlend/uatom is a real market but not a listed position.
	_, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-supply/v1",
		Calls: []types.StrategistCall{
			{Method: "deposit", Args: []byte(`{"market":"mainlend","denom":"uatom","amount":"1000000"}`)},
		},
	}})
	require.ErrorIs(t, err, types.ErrPositionMustBeTracked)
}

func TestExternalReceiverBlocked(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	_, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-supply/v1",
		Calls: []types.StrategistCall{
			{Method: "deposit", Args: []byte(`{"market":"sidelend","denom":"uusdc","amount":"30000000"}`)},
		},
	}})
	require.NoError(t, err)

	_, err = f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "lending-supply/v1",
		Calls: []types.StrategistCall{
			{Method: "withdraw", Args: []byte(`{"market":"sidelend","denom":"uusdc","amount":"30000000","receiver":"mallory"}`)},
		},
	}})
	require.ErrorIs(t, err, types.ErrExternalReceiverBlocked)

	// Custody did not move.
	require.True(t, f.env.Bank.BalanceOf(mallory, "uusdc").IsZero())
	side, err := f.env.LendingMarketByID("sidelend")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(30_000_000), side.SupplyOf(f.cl.Address(), "uusdc"))
}

func TestDeviationGuardRevertsOutsizedGain(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	// A 1% windfall is outside the 0.5% band; surprise gains are as suspect
	// as surprise losses.
	rewards, err := f.env.RewardsByID("incentives")
	require.NoError(t, err)
	require.NoError(t, rewards.Accrue(f.cl.Address(), usdc(1_000_000)))

	_, err = f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "reward-claim/v1",
		Calls: []types.StrategistCall{
			{Method: "claim", Args: []byte(`{"distributor":"incentives","quote":"uusdc"}`)},
		},
	}})
	require.ErrorIs(t, err, types.ErrTotalAssetsDeviatedOutsideRange)

	// Revert restored the pending claim.
	rewards, err = f.env.RewardsByID("incentives")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_000_000), rewards.Pending(f.cl.Address()).AmountOf("uusdc"))

	total, err := f.cl.TotalAssets()
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), total)
}

func TestSmallClaimCommits(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 1_000_000_000)

	rewards, err := f.env.RewardsByID("incentives")
	require.NoError(t, err)
	require.NoError(t, rewards.Accrue(f.cl.Address(), usdc(1_000_000)))

	result, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "reward-claim/v1",
		Calls: []types.StrategistCall{
			{Method: "claim", Args: []byte(`{"distributor":"incentives","quote":"uusdc"}`)},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(1_001_000_000), result.PostValue)

	rewards, err = f.env.RewardsByID("incentives")
	require.NoError(t, err)
	require.True(t, rewards.Pending(f.cl.Address()).IsZero())
}

func TestLPJoinAndExitPreserveValue(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	result, err := f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "amm-lp/v1",
		Calls: []types.StrategistCall{
			{Method: "join", Args: []byte(`{"pool":"atomusdc","quote":"uusdc","amounts":[{"denom":"uusdc","amount":"50000000"}]}`)},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), result.PostValue)

	pool, err := f.env.PoolByID("atomusdc")
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(50_000_000), pool.SharesOf(f.cl.Address()))

	// Exit with zero shares means exit everything.
	result, err = f.cl.CallOnAdaptor(strategist, []types.AdaptorCall{{
		AdaptorID: "amm-lp/v1",
		Calls: []types.StrategistCall{
			{Method: "exit", Args: []byte(`{"pool":"atomusdc","quote":"uusdc"}`)},
		},
	}})
	require.NoError(t, err)
	require.Equal(t, sdkmath.NewInt(100_000_000), result.PostValue)
	require.Equal(t, sdkmath.NewInt(100_000_000), f.env.Bank.BalanceOf(f.cl.Address(), "uusdc"))
}

func TestDispatcherGating(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, 100_000_000)

	batch := []types.AdaptorCall{{
		AdaptorID: "lending-supply/v1",
		Calls: []types.StrategistCall{
			{Method: "deposit", Args: []byte(`{"market":"sidelend","denom":"uusdc","amount":"1000000"}`)},
		},
	}}

	_, err := f.cl.CallOnAdaptor(mallory, batch)
	require.ErrorIs(t, err, cellar.ErrNotStrategist)

	_, err = f.cl.CallOnAdaptor(strategist, nil)
	require.Error(t, err)

	// De-catalogued adaptors are refused even if registry-trusted.
	require.NoError(t, f.cl.RemoveAdaptorFromCatalogue(strategist, "lending-supply/v1"))
	_, err = f.cl.CallOnAdaptor(strategist, batch)
	require.ErrorIs(t, err, types.ErrAdaptorNotInCatalogue)

	// Registry-distrusted adaptors are refused even if catalogued.
	require.NoError(t, f.cl.AddAdaptorToCatalogue(strategist, "lending-supply/v1"))
	f.reg.DistrustAdaptor("lending-supply/v1")
	_, err = f.cl.CallOnAdaptor(strategist, batch)
	require.ErrorIs(t, err, types.ErrUntrustedAdaptor)
}
