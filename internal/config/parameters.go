/*

This file contains the default guardrail parameters for the cellar.

These parameters bound what a strategist batch is allowed to do to custodied
funds. They are deliberately conservative: the cellar favors failing a whole
rebalance over risking a partially-consistent solvency state.

*/

package config

import (
	"errors"
	"os"

	sdkmath "cosmossdk.io/math"
)

// Guardrails holds the solvency and drift parameters enforced by the cellar.
type Guardrails struct {
	// RebalanceDeviation is the maximum tolerated relative change in total
	// vault value across one strategist batch (0.005 = 0.5%).
	RebalanceDeviation sdkmath.LegacyDec

	// MinimumHealthFactor is the composite collateralization ratio that every
	// debt-bearing position must stay strictly above after any mutating
	// action.
	MinimumHealthFactor sdkmath.LegacyDec

	// ShareLockPeriod is the number of blocks newly minted shares stay
	// locked against transfer and redemption.
	ShareLockPeriod int64

	// TotalAssetsCap bounds the vault's aggregate value in the base denom.
	// A deposit that would push total assets above the cap is refused.
	// Zero means uncapped.
	TotalAssetsCap sdkmath.Int
}

// DefaultGuardrails provides the baseline guardrail parameters.
//
// RebalanceDeviation 0.5%: a single batch may legitimately lose a little
// value to swap slippage and protocol fees, but anything beyond half a
// percent on a rebalance is a strategist mistake or an attack.
//
// MinimumHealthFactor 1.05: below ~1.05 most lending protocols are one small
// price move away from liquidation. The check is strictly-greater-than.
//
// ShareLockPeriod 10 blocks: enough to make deposit/withdraw within one
// block (flash-loan shaped attacks) impossible without inconveniencing
// depositors.
//
// TotalAssetsCap zero: new vaults launch uncapped; operators set a cap while
// a strategy is still proving out.
var DefaultGuardrails = Guardrails{
	RebalanceDeviation:  sdkmath.LegacyNewDecWithPrec(5, 3),   // 0.005
	MinimumHealthFactor: sdkmath.LegacyNewDecWithPrec(105, 2), // 1.05
	ShareLockPeriod:     10,
	TotalAssetsCap:      sdkmath.ZeroInt(),
}

// ActiveGuardrails is what the cellar is constructed with. LoadConfig may
// override individual fields from the environment.
var ActiveGuardrails = DefaultGuardrails

// loadGuardrailOverrides applies optional environment overrides on top of
// the defaults. Absent variables keep their default.
func loadGuardrailOverrides() error {
	if v, ok := os.LookupEnv("CELLAR_REBALANCE_DEVIATION"); ok {
		dec, err := sdkmath.LegacyNewDecFromStr(v)
		if err != nil {
			return err
		}
		ActiveGuardrails.RebalanceDeviation = dec
	}

	if v, ok := os.LookupEnv("CELLAR_MIN_HEALTH_FACTOR"); ok {
		dec, err := sdkmath.LegacyNewDecFromStr(v)
		if err != nil {
			return err
		}
		ActiveGuardrails.MinimumHealthFactor = dec
	}

	if _, ok := os.LookupEnv("CELLAR_SHARE_LOCK_PERIOD"); ok {
		blocks, err := getEnvAsInt64("CELLAR_SHARE_LOCK_PERIOD")
		if err != nil {
			return err
		}
		ActiveGuardrails.ShareLockPeriod = blocks
	}

	if v, ok := os.LookupEnv("CELLAR_TOTAL_ASSETS_CAP"); ok {
		assetCap, parsed := sdkmath.NewIntFromString(v)
		if !parsed || assetCap.IsNegative() {
			return errors.New("environment variable CELLAR_TOTAL_ASSETS_CAP must be a non-negative integer, got: " + v)
		}
		ActiveGuardrails.TotalAssetsCap = assetCap
	}

	return nil
}
