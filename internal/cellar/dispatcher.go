/*

This file contains the strategist batch dispatcher: one entry point that runs
an ordered list of adaptor calls against a snapshot of the simulated
environment, re-values the vault afterwards, and reverts everything if any
call fails or the valuation moved outside the allowed band.

*/

package cellar

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/adaptor"
	"github.com/vaultworks/cellar/internal/types"
)

// BatchResult summarizes one dispatched batch for receipts and reporting.
type BatchResult struct {
	PreValue  sdkmath.Int
	PostValue sdkmath.Int
	Deviation sdkmath.LegacyDec
	CallCount int
}

// CallOnAdaptor executes a strategist batch atomically. Each adaptor in the
// batch must be vault-catalogued and registry-trusted; calls run in submitted
// order against live environment state, so later calls see earlier effects.
// Any failure, or a post-batch valuation outside the deviation band, reverts
// the entire batch.
func (c *Cellar) CallOnAdaptor(caller string, batch []types.AdaptorCall) (BatchResult, error) {
	if err := c.begin(); err != nil {
		return BatchResult{}, err
	}
	defer c.end()

	if err := c.requireStrategist(caller); err != nil {
		return BatchResult{}, err
	}
	if len(batch) == 0 {
		return BatchResult{}, fmt.Errorf("empty batch")
	}

	pre, err := c.totalAssets()
	if err != nil {
		return BatchResult{}, err
	}

	snapshot := c.env.Snapshot()
	callCount := 0

	ctx := adaptor.CallContext{
		Env:                 c.env,
		VaultAddress:        c.address,
		MinimumHealthFactor: c.guardrails.MinimumHealthFactor,
		IsTracked:           c.isTracked,
	}

	for _, ac := range batch {
		a, ok := c.adaptors[ac.AdaptorID]
		if !ok {
			c.revert(snapshot)
			return BatchResult{}, fmt.Errorf("%w: %s", ErrUnknownAdaptor, ac.AdaptorID)
		}
		if !c.adaptorCatalogue[ac.AdaptorID] {
			c.revert(snapshot)
			return BatchResult{}, fmt.Errorf("%w: %s", types.ErrAdaptorNotInCatalogue, ac.AdaptorID)
		}
		if !c.registry.IsAdaptorTrusted(ac.AdaptorID) {
			c.revert(snapshot)
			return BatchResult{}, fmt.Errorf("%w: %s", types.ErrUntrustedAdaptor, ac.AdaptorID)
		}

		for _, call := range ac.Calls {
			if err := a.StrategistCall(ctx, call); err != nil {
				c.revert(snapshot)
				cellarLogger.Warn().
					Str("adaptor", ac.AdaptorID).
					Str("method", call.Method).
					Err(err).
					Msg("Batch reverted: strategist call failed")
				return BatchResult{}, fmt.Errorf("adaptor %s method %s: %w", ac.AdaptorID, call.Method, err)
			}
			callCount++
		}
	}

	post, err := c.totalAssets()
	if err != nil {
		c.revert(snapshot)
		return BatchResult{}, err
	}

	deviation := deviationOf(pre, post)
	if deviation.GT(c.guardrails.RebalanceDeviation) {
		c.revert(snapshot)
		cellarLogger.Warn().
			Str("preValue", pre.String()).
			Str("postValue", post.String()).
			Str("deviation", deviation.String()).
			Str("allowed", c.guardrails.RebalanceDeviation.String()).
			Msg("Batch reverted: total assets deviated outside range")
		return BatchResult{}, fmt.Errorf("%w: %s > %s",
			types.ErrTotalAssetsDeviatedOutsideRange, deviation, c.guardrails.RebalanceDeviation)
	}

	if err := c.env.Commit(snapshot); err != nil {
		return BatchResult{}, err
	}

	cellarLogger.Info().
		Str("preValue", pre.String()).
		Str("postValue", post.String()).
		Str("deviation", deviation.String()).
		Int("calls", callCount).
		Msg("Batch committed")

	return BatchResult{
		PreValue:  pre,
		PostValue: post,
		Deviation: deviation,
		CallCount: callCount,
	}, nil
}

// revert rolls the environment back to the snapshot. A revert that fails has
// already broken the batch's atomicity contract, so it is logged at error
// level rather than swallowed.
func (c *Cellar) revert(snapshot int) {
	if err := c.env.Revert(snapshot); err != nil {
		cellarLogger.Error().
			Err(err).
			Int("snapshot", snapshot).
			Msg("Snapshot revert failed; environment state may be inconsistent")
	}
}

// deviationOf returns |post-pre|/pre, or zero when pre is zero.
func deviationOf(pre, post sdkmath.Int) sdkmath.LegacyDec {
	if pre.IsZero() {
		return sdkmath.LegacyZeroDec()
	}
	diff := post.Sub(pre)
	if diff.IsNegative() {
		diff = diff.Neg()
	}
	return sdkmath.LegacyNewDecFromInt(diff).Quo(sdkmath.LegacyNewDecFromInt(pre))
}
