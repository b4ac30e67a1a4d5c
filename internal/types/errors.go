/*

This file contains the shared error taxonomy for the cellar system. Every
mutating entry point (deposit, withdraw, CallOnAdaptor) aborts atomically on
any of these; there is no partial commit.

*/

package types

import "errors"

var (
	// ErrPositionMustBeTracked is returned when an adaptor call targets a
	// (adaptor, config) pair that is not in the cellar's catalogue or
	// position list.
	ErrPositionMustBeTracked = errors.New("position must be tracked")

	// ErrHealthFactorTooLow is returned when a mutating debt or collateral
	// action would breach the minimum collateralization ratio.
	ErrHealthFactorTooLow = errors.New("health factor too low")

	// ErrExternalReceiverBlocked is returned when a strategist-issued
	// withdrawal targets a recipient other than the cellar itself.
	ErrExternalReceiverBlocked = errors.New("external receiver blocked")

	// ErrTotalAssetsDeviatedOutsideRange is returned when post-batch
	// aggregate value moved beyond the rebalance deviation tolerance.
	ErrTotalAssetsDeviatedOutsideRange = errors.New("total assets deviated outside range")

	// ErrPricingNotSupported is returned when an asset encountered during
	// valuation has no oracle price. Valuation fails closed, never zero.
	ErrPricingNotSupported = errors.New("pricing not supported")

	// ErrInsufficientLiquidity is returned when a withdrawal exceeds the
	// currently withdrawable value.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrAlreadyInMarket is returned on an idempotency violation of a
	// collateral enter action.
	ErrAlreadyInMarket = errors.New("already in market")

	// ErrSharesLocked is returned when shares are transferred or redeemed
	// before their lock period has elapsed.
	ErrSharesLocked = errors.New("shares are locked")

	// Registry trust errors.
	ErrUntrustedAdaptor  = errors.New("adaptor is not trusted")
	ErrUntrustedPosition = errors.New("position is not trusted")
	ErrUnknownPosition   = errors.New("position id is unknown")

	// Cellar configuration errors.
	ErrPositionNotInCatalogue = errors.New("position is not in the catalogue")
	ErrAdaptorNotInCatalogue  = errors.New("adaptor is not in the catalogue")
	ErrPositionNotEmpty       = errors.New("position balance is not zero")
	ErrHoldingPositionInvalid = errors.New("holding position is invalid")
	ErrZeroAssets             = errors.New("assets must be positive")
	ErrZeroShares             = errors.New("shares must be positive")
	ErrReentrancy             = errors.New("reentrant call rejected")
	ErrUnknownMethod          = errors.New("unknown strategist method")
)
