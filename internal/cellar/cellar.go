/*

This file contains the cellar's share accounting engine: deposits, the
in-order liquidity draw-down for withdrawals, share locks, and aggregate
valuation. Every mutating entry point runs under a non-reentrant guard and is
atomic; partial application is never observable.

*/

package cellar

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/vaultworks/cellar/internal/adaptor"
	"github.com/vaultworks/cellar/internal/config"
	"github.com/vaultworks/cellar/internal/logger"
	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/oracle"
	"github.com/vaultworks/cellar/internal/registry"
	"github.com/vaultworks/cellar/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrNotStrategist      = errors.New("caller is not the strategist")
	ErrUnknownAdaptor     = errors.New("adaptor is not installed")
	ErrZeroValuation      = errors.New("total assets is zero with outstanding shares")
	ErrInsufficientBal    = errors.New("insufficient share balance")
	ErrDuplicatePattern   = errors.New("position is already in the list")
	ErrBadIndex           = errors.New("position index out of range")
	ErrDepositCapExceeded = errors.New("deposit exceeds the total assets cap")
)

var cellarLogger = logger.GetForComponent("cellar")

// Cellar is the pooled custodial vault: it owns an ordered list of positions,
// issues proportional shares against their aggregate value, and dispatches
// strategist batches under solvency guardrails.
type Cellar struct {
	mu      sync.Mutex
	entered bool

	name    string
	symbol  string
	address string

	baseDenom  string
	strategist string

	registry *registry.Registry
	oracle   oracle.PriceOracle
	env      *markets.Environment
	adaptors map[string]adaptor.Adaptor

	positions []types.CellarPosition
	holdingID types.PositionID

	adaptorCatalogue  map[string]bool
	positionCatalogue map[types.PositionID]bool

	totalShares   sdkmath.Int
	shareBalances map[string]sdkmath.Int
	shareUnlocks  map[string]int64

	guardrails config.Guardrails
}

// Config holds everything needed to construct a cellar.
type Config struct {
	Name       string
	Symbol     string
	BaseDenom  string
	Strategist string
	Registry   *registry.Registry
	Oracle     oracle.PriceOracle
	Env        *markets.Environment
	Adaptors   []adaptor.Adaptor
	Guardrails config.Guardrails
}

// New creates a cellar with an empty position list and zero shares.
func New(cfg Config) (*Cellar, error) {
	if cfg.Name == "" || cfg.Symbol == "" {
		return nil, errors.New("name and symbol are required")
	}
	if cfg.BaseDenom == "" {
		return nil, errors.New("base denom is required")
	}
	if cfg.Strategist == "" {
		return nil, errors.New("strategist address is required")
	}
	if cfg.Registry == nil || cfg.Oracle == nil || cfg.Env == nil {
		return nil, errors.New("registry, oracle and environment are required")
	}
	if !cfg.Oracle.IsSupported(cfg.BaseDenom) {
		return nil, fmt.Errorf("%w: base denom %s", types.ErrPricingNotSupported, cfg.BaseDenom)
	}

	adaptors := make(map[string]adaptor.Adaptor, len(cfg.Adaptors))
	for _, a := range cfg.Adaptors {
		adaptors[a.ID()] = a
	}

	c := &Cellar{
		name:              cfg.Name,
		symbol:            cfg.Symbol,
		address:           "cellar/" + cfg.Symbol,
		baseDenom:         cfg.BaseDenom,
		strategist:        cfg.Strategist,
		registry:          cfg.Registry,
		oracle:            cfg.Oracle,
		env:               cfg.Env,
		adaptors:          adaptors,
		adaptorCatalogue:  make(map[string]bool),
		positionCatalogue: make(map[types.PositionID]bool),
		totalShares:       sdkmath.ZeroInt(),
		shareBalances:     make(map[string]sdkmath.Int),
		shareUnlocks:      make(map[string]int64),
		guardrails:        cfg.Guardrails,
	}

	cellarLogger.Info().
		Str("name", c.name).
		Str("symbol", c.symbol).
		Str("baseDenom", c.baseDenom).
		Msg("Cellar created")

	return c, nil
}

// Name returns the share token name.
func (c *Cellar) Name() string { return c.name }

// Symbol returns the share token symbol.
func (c *Cellar) Symbol() string { return c.symbol }

// Address returns the cellar's own bank account.
func (c *Cellar) Address() string { return c.address }

// BaseDenom returns the denom the cellar accounts in.
func (c *Cellar) BaseDenom() string { return c.baseDenom }

// begin acquires the mutation guard and holds c.mu until end. Concurrent
// callers serialize on the mutex; the entered flag trips only when an
// external protocol re-enters the vault on the same call stack through an
// internal path, which must fail loudly instead of corrupting state.
func (c *Cellar) begin() error {
	c.mu.Lock()
	if c.entered {
		c.mu.Unlock()
		return types.ErrReentrancy
	}
	c.entered = true
	return nil
}

// end releases the guard taken by begin.
func (c *Cellar) end() {
	c.entered = false
	c.mu.Unlock()
}

// Deposit converts assets into shares at the current share price, routes the
// assets into the holding position, and starts the receiver's share lock.
func (c *Cellar) Deposit(assets sdkmath.Int, depositor string) (sdkmath.Int, error) {
	if err := c.begin(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer c.end()

	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrZeroAssets
	}

	holding, holdingAdaptor, err := c.holdingPosition()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	// Price shares against the pre-deposit valuation.
	total, err := c.totalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	assetCap := c.guardrails.TotalAssetsCap
	if !assetCap.IsNil() && assetCap.IsPositive() && total.Add(assets).GT(assetCap) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: cap %s, total %s, depositing %s",
			ErrDepositCapExceeded, assetCap, total, assets)
	}

	var shares sdkmath.Int
	if c.totalShares.IsZero() {
		shares = assets
	} else {
		if total.IsZero() {
			return sdkmath.ZeroInt(), ErrZeroValuation
		}
		shares = assets.Mul(c.totalShares).Quo(total)
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrZeroShares
	}

	if err := c.env.Bank.Transfer(depositor, c.address, sdk.Coin{Denom: c.baseDenom, Amount: assets}); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := holdingAdaptor.Deposit(c.env, c.address, holding.Config, assets); err != nil {
		return sdkmath.ZeroInt(), err
	}

	c.mintShares(depositor, shares)

	cellarLogger.Info().
		Str("depositor", depositor).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Deposit accepted")

	return shares, nil
}

// Withdraw burns just enough of owner's shares to pay receiver the requested
// assets, pulling liquidity from positions in list order.
func (c *Cellar) Withdraw(assets sdkmath.Int, receiver, owner string) (sdkmath.Int, error) {
	if err := c.begin(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer c.end()

	if assets.IsNil() || !assets.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrZeroAssets
	}

	total, err := c.totalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if total.IsZero() || c.totalShares.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroValuation
	}

	// Round shares up so rounding can never favor the withdrawer.
	shares := assets.Mul(c.totalShares).Add(total).Sub(sdkmath.OneInt()).Quo(total)

	if err := c.redeemInternal(shares, assets, receiver, owner); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

// Redeem burns an exact share amount and pays out the proportional assets.
func (c *Cellar) Redeem(shares sdkmath.Int, receiver, owner string) (sdkmath.Int, error) {
	if err := c.begin(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer c.end()

	if shares.IsNil() || !shares.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrZeroShares
	}
	if c.totalShares.IsZero() {
		return sdkmath.ZeroInt(), ErrZeroValuation
	}

	total, err := c.totalAssets()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	assets := shares.Mul(total).Quo(c.totalShares)
	if !assets.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrZeroAssets
	}

	if err := c.redeemInternal(shares, assets, receiver, owner); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return assets, nil
}

// redeemInternal burns shares and draws assets (base-denom value) out of the
// position list in order. Caller holds the mutation guard.
func (c *Cellar) redeemInternal(shares, assets sdkmath.Int, receiver, owner string) error {
	have, ok := c.shareBalances[owner]
	if !ok || have.LT(shares) {
		return fmt.Errorf("%w: %s has %s, redeeming %s", ErrInsufficientBal, owner, have, shares)
	}
	if unlock, ok := c.shareUnlocks[owner]; ok && c.env.BlockHeight() < unlock {
		return fmt.Errorf("%w: until block %d", types.ErrSharesLocked, unlock)
	}

	withdrawable, err := c.totalAssetsWithdrawable()
	if err != nil {
		return err
	}
	if assets.GT(withdrawable) {
		return fmt.Errorf("%w: requested %s, withdrawable %s", types.ErrInsufficientLiquidity, assets, withdrawable)
	}

	// Draw liquidity in stored position order; deterministic and
	// reproducible by construction.
	remaining := assets
	for _, pos := range c.positions {
		if !remaining.IsPositive() {
			break
		}
		record, a, err := c.resolve(pos.ID)
		if err != nil {
			return err
		}
		if record.IsDebt {
			continue
		}

		avail, err := a.WithdrawableFrom(c.env, c.address, pos.Config)
		if err != nil {
			return err
		}
		if !avail.IsPositive() {
			continue
		}

		denom, err := a.AssetOf(pos.Config)
		if err != nil {
			return err
		}
		if !c.oracle.IsSupported(denom) {
			return fmt.Errorf("%w: %s", types.ErrPricingNotSupported, denom)
		}

		availBase, err := c.oracle.GetValue(denom, avail, c.baseDenom)
		if err != nil {
			return err
		}
		if !availBase.IsPositive() {
			continue
		}

		takeBase := remaining
		if takeBase.GT(availBase) {
			takeBase = availBase
		}
		takeNative, err := c.oracle.GetValue(c.baseDenom, takeBase, denom)
		if err != nil {
			return err
		}
		if takeNative.GT(avail) {
			takeNative = avail
		}
		if !takeNative.IsPositive() {
			continue
		}

		if err := a.Withdraw(c.env, c.address, pos.Config, takeNative, c.address); err != nil {
			return err
		}
		if err := c.env.Bank.Transfer(c.address, receiver, sdk.Coin{Denom: denom, Amount: takeNative}); err != nil {
			return err
		}
		remaining = remaining.Sub(takeBase)
	}

	if remaining.IsPositive() {
		return fmt.Errorf("%w: %s short", types.ErrInsufficientLiquidity, remaining)
	}

	c.burnShares(owner, shares)

	cellarLogger.Info().
		Str("owner", owner).
		Str("receiver", receiver).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Withdrawal completed")

	return nil
}

// TransferShares moves shares between holders, subject to the sender's lock.
func (c *Cellar) TransferShares(from, to string, shares sdkmath.Int) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	if shares.IsNil() || !shares.IsPositive() {
		return types.ErrZeroShares
	}
	have, ok := c.shareBalances[from]
	if !ok || have.LT(shares) {
		return fmt.Errorf("%w: %s has %s, sending %s", ErrInsufficientBal, from, have, shares)
	}
	if unlock, ok := c.shareUnlocks[from]; ok && c.env.BlockHeight() < unlock {
		return fmt.Errorf("%w: until block %d", types.ErrSharesLocked, unlock)
	}

	c.burnShares(from, shares)
	c.mintTo(to, shares)
	return nil
}

// TotalAssets returns the aggregate value of every position, converted to
// the base denom. Debt positions subtract. Fails closed: if any position
// cannot be valued, the whole call fails rather than undercounting.
func (c *Cellar) TotalAssets() (sdkmath.Int, error) {
	if err := c.begin(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer c.end()
	return c.totalAssets()
}

// TotalAssetsWithdrawable returns the value reachable by user withdrawals
// right now.
func (c *Cellar) TotalAssetsWithdrawable() (sdkmath.Int, error) {
	if err := c.begin(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer c.end()
	return c.totalAssetsWithdrawable()
}

func (c *Cellar) totalAssets() (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, pos := range c.positions {
		record, a, err := c.resolve(pos.ID)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}

		balance, err := a.BalanceOf(c.env, c.address, pos.Config)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}

		denom, err := a.AssetOf(pos.Config)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !c.oracle.IsSupported(denom) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", types.ErrPricingNotSupported, denom)
		}

		value, err := c.oracle.GetValue(denom, balance, c.baseDenom)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}

		if record.IsDebt {
			total = total.Sub(value)
		} else {
			total = total.Add(value)
		}
	}
	return total, nil
}

func (c *Cellar) totalAssetsWithdrawable() (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, pos := range c.positions {
		record, a, err := c.resolve(pos.ID)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if record.IsDebt {
			continue
		}

		avail, err := a.WithdrawableFrom(c.env, c.address, pos.Config)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !avail.IsPositive() {
			continue
		}

		denom, err := a.AssetOf(pos.Config)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		if !c.oracle.IsSupported(denom) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", types.ErrPricingNotSupported, denom)
		}

		value, err := c.oracle.GetValue(denom, avail, c.baseDenom)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(value)
	}
	return total, nil
}

// resolve maps a position id to its registry record and installed adaptor.
func (c *Cellar) resolve(id types.PositionID) (types.Position, adaptor.Adaptor, error) {
	record, err := c.registry.Position(id)
	if err != nil {
		return types.Position{}, nil, err
	}
	a, ok := c.adaptors[record.AdaptorID]
	if !ok {
		return types.Position{}, nil, fmt.Errorf("%w: %s", ErrUnknownAdaptor, record.AdaptorID)
	}
	return record, a, nil
}

func (c *Cellar) holdingPosition() (types.CellarPosition, adaptor.Adaptor, error) {
	for _, pos := range c.positions {
		if pos.ID == c.holdingID {
			_, a, err := c.resolve(pos.ID)
			if err != nil {
				return types.CellarPosition{}, nil, err
			}
			return pos, a, nil
		}
	}
	return types.CellarPosition{}, nil, types.ErrHoldingPositionInvalid
}

func (c *Cellar) mintShares(owner string, shares sdkmath.Int) {
	c.mintTo(owner, shares)
	unlock := c.env.BlockHeight() + c.guardrails.ShareLockPeriod
	if cur, ok := c.shareUnlocks[owner]; !ok || unlock > cur {
		c.shareUnlocks[owner] = unlock
	}
}

func (c *Cellar) mintTo(owner string, shares sdkmath.Int) {
	cur, ok := c.shareBalances[owner]
	if !ok {
		cur = sdkmath.ZeroInt()
	}
	c.shareBalances[owner] = cur.Add(shares)
	c.totalShares = c.totalShares.Add(shares)
}

func (c *Cellar) burnShares(owner string, shares sdkmath.Int) {
	c.shareBalances[owner] = c.shareBalances[owner].Sub(shares)
	c.totalShares = c.totalShares.Sub(shares)
}

// TotalShares returns the outstanding share supply.
func (c *Cellar) TotalShares() sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalShares
}

// ShareBalanceOf returns one holder's share balance.
func (c *Cellar) ShareBalanceOf(owner string) sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.shareBalances[owner]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return cur
}

// SharePrice returns totalAssets/totalShares, or one when no shares exist.
func (c *Cellar) SharePrice() (sdkmath.LegacyDec, error) {
	total, err := c.TotalAssets()
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalShares.IsZero() {
		return sdkmath.LegacyOneDec(), nil
	}
	return sdkmath.LegacyNewDecFromInt(total).Quo(sdkmath.LegacyNewDecFromInt(c.totalShares)), nil
}
