/*

This file contains the lending-protocol adaptor variants: interest-bearing
supply, pledged collateral, and debt. Collateral and debt actions are guarded
by the health-factor evaluator; a borrow or collateral withdrawal that would
drop the composite ratio to or below the minimum reverts with
ErrHealthFactorTooLow before the batch can commit.

*/

package adaptor

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/health"
	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/types"
)

// LendingConfig identifies one asset market inside one lending protocol.
type LendingConfig struct {
	Market string `json:"market"`
	Denom  string `json:"denom"`
}

// Encode returns the canonical config bytes for this market position.
func (c LendingConfig) Encode() []byte {
	out, _ := json.Marshal(c)
	return out
}

func decodeLendingConfig(config []byte) (LendingConfig, error) {
	var c LendingConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return LendingConfig{}, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	if c.Market == "" || c.Denom == "" {
		return LendingConfig{}, fmt.Errorf("%w: market and denom are required", ErrBadConfig)
	}
	return c, nil
}

// amountArgs is the argument shape shared by single-amount strategist calls.
type amountArgs struct {
	Amount   sdkmath.Int `json:"amount"`
	Receiver string      `json:"receiver,omitempty"`
}

// checkHealthFactor enforces the minimum ratio after a mutating action.
func checkHealthFactor(ctx CallContext, market markets.LendingMarket) error {
	ok, err := health.MeetsMinimum(market.AccountData(ctx.VaultAddress), ctx.MinimumHealthFactor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: minimum %s", types.ErrHealthFactorTooLow, ctx.MinimumHealthFactor)
	}
	return nil
}

// --- Supply ---

// LendingSupplyAdaptor deploys vault funds as plain interest-bearing supply.
// The supplied balance stays liquid unless the position has also been
// entered as borrow collateral.
type LendingSupplyAdaptor struct{}

// NewLendingSupplyAdaptor creates the supply adaptor.
func NewLendingSupplyAdaptor() *LendingSupplyAdaptor { return &LendingSupplyAdaptor{} }

func (a *LendingSupplyAdaptor) ID() string   { return "lending-supply/v1" }
func (a *LendingSupplyAdaptor) IsDebt() bool { return false }

func (a *LendingSupplyAdaptor) AssetOf(config []byte) (string, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return "", err
	}
	return c.Denom, nil
}

func (a *LendingSupplyAdaptor) AssetsUsed(config []byte) ([]string, error) {
	denom, err := a.AssetOf(config)
	if err != nil {
		return nil, err
	}
	return []string{denom}, nil
}

func (a *LendingSupplyAdaptor) BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return market.SupplyOf(vault, c.Denom), nil
}

func (a *LendingSupplyAdaptor) WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	// Supply pledged as collateral is not free liquidity.
	if market.InMarket(vault, c.Denom) {
		return sdkmath.ZeroInt(), nil
	}
	return market.SupplyOf(vault, c.Denom), nil
}

func (a *LendingSupplyAdaptor) Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return err
	}
	return market.Supply(vault, c.Denom, amount)
}

func (a *LendingSupplyAdaptor) Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error {
	if err := requireVaultReceiver(vault, receiver); err != nil {
		return err
	}
	c, err := decodeLendingConfig(config)
	if err != nil {
		return err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return err
	}
	return market.WithdrawSupply(vault, c.Denom, amount)
}

func (a *LendingSupplyAdaptor) StrategistCall(ctx CallContext, call types.StrategistCall) error {
	var args struct {
		LendingConfig
		amountArgs
	}
	if err := decodeArgs(call, &args); err != nil {
		return err
	}
	config := args.LendingConfig.Encode()
	if err := requireTracked(ctx, a.ID(), config); err != nil {
		return err
	}

	switch call.Method {
	case "deposit":
		return a.Deposit(ctx.Env, ctx.VaultAddress, config, args.Amount)
	case "withdraw":
		receiver := args.Receiver
		if receiver == "" {
			receiver = ctx.VaultAddress
		}
		return a.Withdraw(ctx.Env, ctx.VaultAddress, config, args.Amount, receiver)
	default:
		return fmt.Errorf("%w: %s on %s", types.ErrUnknownMethod, call.Method, a.ID())
	}
}

var _ Adaptor = (*LendingSupplyAdaptor)(nil)

// --- Collateral ---

// CollateralAdaptor manages supply that is additionally pledged against
// borrows. Removing collateral or exiting the market re-validates the
// composite health factor.
type CollateralAdaptor struct {
	minHealthFactor sdkmath.LegacyDec
}

// NewCollateralAdaptor creates the collateral adaptor. The minimum health
// factor guards the direct withdraw path, which runs without a CallContext.
func NewCollateralAdaptor(minHealthFactor sdkmath.LegacyDec) *CollateralAdaptor {
	if minHealthFactor.IsNil() {
		minHealthFactor = sdkmath.LegacyOneDec()
	}
	return &CollateralAdaptor{minHealthFactor: minHealthFactor}
}

func (a *CollateralAdaptor) ID() string   { return "lending-collateral/v1" }
func (a *CollateralAdaptor) IsDebt() bool { return false }

func (a *CollateralAdaptor) AssetOf(config []byte) (string, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return "", err
	}
	return c.Denom, nil
}

func (a *CollateralAdaptor) AssetsUsed(config []byte) ([]string, error) {
	denom, err := a.AssetOf(config)
	if err != nil {
		return nil, err
	}
	return []string{denom}, nil
}

func (a *CollateralAdaptor) BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !market.InMarket(vault, c.Denom) {
		return sdkmath.ZeroInt(), nil
	}
	return market.SupplyOf(vault, c.Denom), nil
}

// WithdrawableFrom is zero while any borrow is outstanding in the market:
// pulling pledged collateral through the user-withdraw path must never be
// able to undercollateralize the vault.
func (a *CollateralAdaptor) WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !market.InMarket(vault, c.Denom) {
		return sdkmath.ZeroInt(), nil
	}
	for _, pos := range market.AccountData(vault) {
		if pos.BorrowBalance.IsPositive() {
			return sdkmath.ZeroInt(), nil
		}
	}
	return market.SupplyOf(vault, c.Denom), nil
}

func (a *CollateralAdaptor) Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return err
	}
	return market.Supply(vault, c.Denom, amount)
}

func (a *CollateralAdaptor) Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error {
	if err := requireVaultReceiver(vault, receiver); err != nil {
		return err
	}
	c, err := decodeLendingConfig(config)
	if err != nil {
		return err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return err
	}
	if err := market.WithdrawSupply(vault, c.Denom, amount); err != nil {
		return err
	}
	ok, err := health.MeetsMinimum(market.AccountData(vault), a.minHealthFactor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: collateral withdrawal", types.ErrHealthFactorTooLow)
	}
	return nil
}

func (a *CollateralAdaptor) StrategistCall(ctx CallContext, call types.StrategistCall) error {
	var args struct {
		LendingConfig
		amountArgs
	}
	if err := decodeArgs(call, &args); err != nil {
		return err
	}
	config := args.LendingConfig.Encode()
	if err := requireTracked(ctx, a.ID(), config); err != nil {
		return err
	}
	market, err := ctx.Env.LendingMarketByID(args.Market)
	if err != nil {
		return err
	}

	switch call.Method {
	case "enter_market":
		return market.EnterMarket(ctx.VaultAddress, args.Denom)

	case "exit_market":
		if err := market.ExitMarket(ctx.VaultAddress, args.Denom); err != nil {
			return err
		}
		return checkHealthFactor(ctx, market)

	case "add_collateral":
		if !market.InMarket(ctx.VaultAddress, args.Denom) {
			return fmt.Errorf("%w: %s", markets.ErrNotInMarket, args.Denom)
		}
		return market.Supply(ctx.VaultAddress, args.Denom, args.Amount)

	case "remove_collateral":
		if err := market.WithdrawSupply(ctx.VaultAddress, args.Denom, args.Amount); err != nil {
			return err
		}
		return checkHealthFactor(ctx, market)

	default:
		return fmt.Errorf("%w: %s on %s", types.ErrUnknownMethod, call.Method, a.ID())
	}
}

var _ Adaptor = (*CollateralAdaptor)(nil)

// --- Debt ---

// DebtAdaptor tracks what the vault owes to a lending protocol. BalanceOf
// returns the owed amount; the cellar subtracts it during valuation.
type DebtAdaptor struct{}

// NewDebtAdaptor creates the debt adaptor.
func NewDebtAdaptor() *DebtAdaptor { return &DebtAdaptor{} }

func (a *DebtAdaptor) ID() string   { return "lending-debt/v1" }
func (a *DebtAdaptor) IsDebt() bool { return true }

func (a *DebtAdaptor) AssetOf(config []byte) (string, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return "", err
	}
	return c.Denom, nil
}

func (a *DebtAdaptor) AssetsUsed(config []byte) ([]string, error) {
	denom, err := a.AssetOf(config)
	if err != nil {
		return nil, err
	}
	return []string{denom}, nil
}

func (a *DebtAdaptor) BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeLendingConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	market, err := env.LendingMarketByID(c.Market)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return market.BorrowOf(vault, c.Denom), nil
}

// WithdrawableFrom is always zero: debt is never user liquidity.
func (a *DebtAdaptor) WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

// Deposit has no meaning for a debt position; borrowing is strategist-only.
func (a *DebtAdaptor) Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error {
	return fmt.Errorf("%w: deposit on %s", types.ErrUnknownMethod, a.ID())
}

// Withdraw has no meaning for a debt position.
func (a *DebtAdaptor) Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error {
	return fmt.Errorf("%w: withdraw on %s", types.ErrUnknownMethod, a.ID())
}

func (a *DebtAdaptor) StrategistCall(ctx CallContext, call types.StrategistCall) error {
	var args struct {
		LendingConfig
		amountArgs
	}
	if err := decodeArgs(call, &args); err != nil {
		return err
	}
	config := args.LendingConfig.Encode()
	if err := requireTracked(ctx, a.ID(), config); err != nil {
		return err
	}
	market, err := ctx.Env.LendingMarketByID(args.Market)
	if err != nil {
		return err
	}

	switch call.Method {
	case "borrow":
		if err := market.Borrow(ctx.VaultAddress, args.Denom, args.Amount); err != nil {
			return err
		}
		return checkHealthFactor(ctx, market)

	case "repay":
		return market.Repay(ctx.VaultAddress, args.Denom, args.Amount)

	default:
		return fmt.Errorf("%w: %s on %s", types.ErrUnknownMethod, call.Method, a.ID())
	}
}

var _ Adaptor = (*DebtAdaptor)(nil)
