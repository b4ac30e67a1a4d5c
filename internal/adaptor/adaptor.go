/*

This file contains the adaptor protocol: the fixed capability set every
protocol integration implements, and the call context strategist dispatch
runs under. Each integration is a compile-time-known variant selected by the
position's stored adaptor identifier; the cellar never interprets call
arguments, only the adaptor does.

*/

package adaptor

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/types"
)

// CallContext is what a strategist-issued call executes under. The adaptor
// acts on the vault's behalf: every balance it moves belongs to VaultAddress,
// and every market it touches must be a tracked position.
type CallContext struct {
	Env          *markets.Environment
	VaultAddress string

	// MinimumHealthFactor is enforced strictly-greater-than after every
	// mutating action on a debt-bearing position.
	MinimumHealthFactor sdkmath.LegacyDec

	// IsTracked reports whether the (adaptor, config) pair is a
	// registry-trusted, catalogued position of the calling vault.
	IsTracked func(adaptorID string, config []byte) bool
}

// Adaptor is a stateless strategy object bound to one external protocol.
type Adaptor interface {
	// ID is the stable identifier positions are trusted under.
	ID() string

	// IsDebt reports whether balances of this adaptor are owed, not held.
	IsDebt() bool

	// AssetOf returns the denom BalanceOf is denominated in.
	AssetOf(config []byte) (string, error)

	// AssetsUsed returns every denom the position touches.
	AssetsUsed(config []byte) ([]string, error)

	// BalanceOf returns the position's balance in its native asset.
	BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error)

	// WithdrawableFrom returns how much of the balance is free to leave the
	// position right now.
	WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error)

	// Deposit routes amount into the position. Used by the cellar's own
	// deposit flow against the holding position.
	Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error

	// Withdraw pulls amount out of the position. The receiver must be the
	// vault itself; user payouts are mediated exclusively by the cellar.
	Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error

	// StrategistCall dispatches one batch call by method name.
	StrategistCall(ctx CallContext, call types.StrategistCall) error
}

// requireVaultReceiver rejects any withdrawal destination other than the
// vault. A compromised strategist must not be able to redirect custody.
func requireVaultReceiver(vault, receiver string) error {
	if receiver != vault {
		return fmt.Errorf("%w: %s", types.ErrExternalReceiverBlocked, receiver)
	}
	return nil
}

// requireTracked rejects state mutation against any market the vault's
// accounting cannot see.
func requireTracked(ctx CallContext, adaptorID string, config []byte) error {
	if ctx.IsTracked == nil || !ctx.IsTracked(adaptorID, config) {
		return fmt.Errorf("%w: adaptor %s", types.ErrPositionMustBeTracked, adaptorID)
	}
	return nil
}

// decodeArgs unmarshals strategist call arguments into the method's
// argument struct.
func decodeArgs(call types.StrategistCall, into any) error {
	if len(call.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(call.Args, into); err != nil {
		return fmt.Errorf("invalid args for %s: %w", call.Method, err)
	}
	return nil
}
