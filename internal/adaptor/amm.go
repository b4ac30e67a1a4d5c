package adaptor

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/oracle"
	"github.com/vaultworks/cellar/internal/types"
)

// LPConfig identifies an AMM liquidity position. Quote is the denom the
// position's balance is reported in.
type LPConfig struct {
	Pool  string `json:"pool"`
	Quote string `json:"quote"`
}

// Encode returns the canonical config bytes for this LP position.
func (c LPConfig) Encode() []byte {
	out, _ := json.Marshal(c)
	return out
}

func decodeLPConfig(config []byte) (LPConfig, error) {
	var c LPConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return LPConfig{}, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	if c.Pool == "" || c.Quote == "" {
		return LPConfig{}, fmt.Errorf("%w: pool and quote are required", ErrBadConfig)
	}
	return c, nil
}

// LPStakeAdaptor wraps an AMM liquidity position. The LP share balance is
// valued by pricing the proportional reserve slice through the oracle into
// the quote asset.
type LPStakeAdaptor struct {
	oracle oracle.PriceOracle
}

// NewLPStakeAdaptor creates the LP adaptor with its pricing collaborator.
func NewLPStakeAdaptor(priceOracle oracle.PriceOracle) *LPStakeAdaptor {
	return &LPStakeAdaptor{oracle: priceOracle}
}

func (a *LPStakeAdaptor) ID() string   { return "amm-lp/v1" }
func (a *LPStakeAdaptor) IsDebt() bool { return false }

func (a *LPStakeAdaptor) AssetOf(config []byte) (string, error) {
	c, err := decodeLPConfig(config)
	if err != nil {
		return "", err
	}
	return c.Quote, nil
}

func (a *LPStakeAdaptor) AssetsUsed(config []byte) ([]string, error) {
	c, err := decodeLPConfig(config)
	if err != nil {
		return nil, err
	}
	// Only the quote denom: positions are valued and exited in quote units,
	// and the pool's token list is not knowable from the config alone.
	out := []string{c.Quote}
	return out, nil
}

// valueShares prices the reserve slice the shares redeem for, in quote units.
func (a *LPStakeAdaptor) valueShares(env *markets.Environment, pool *markets.SimAMMPool, shares sdkmath.Int, quote string) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, reserve := range pool.ShareValue(shares) {
		if !a.oracle.IsSupported(reserve.Denom) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", types.ErrPricingNotSupported, reserve.Denom)
		}
		value, err := a.oracle.GetValue(reserve.Denom, reserve.Amount, quote)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(value)
	}
	return total, nil
}

func (a *LPStakeAdaptor) BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeLPConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	pool, err := env.PoolByID(c.Pool)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return a.valueShares(env, pool, pool.SharesOf(vault), c.Quote)
}

// WithdrawableFrom is zero: exiting a pool returns a basket of assets, not
// the base asset, so user withdrawals never draw from LP positions directly.
func (a *LPStakeAdaptor) WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

// Deposit has no meaning outside a strategist join; pool entries need
// explicit per-asset amounts.
func (a *LPStakeAdaptor) Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error {
	return fmt.Errorf("%w: deposit on %s", types.ErrUnknownMethod, a.ID())
}

// Withdraw has no meaning outside a strategist exit.
func (a *LPStakeAdaptor) Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error {
	return fmt.Errorf("%w: withdraw on %s", types.ErrUnknownMethod, a.ID())
}

func (a *LPStakeAdaptor) StrategistCall(ctx CallContext, call types.StrategistCall) error {
	var args struct {
		LPConfig
		Amounts  sdk.Coins   `json:"amounts,omitempty"`
		Shares   sdkmath.Int `json:"shares,omitempty"`
		Receiver string      `json:"receiver,omitempty"`
	}
	if err := decodeArgs(call, &args); err != nil {
		return err
	}
	config := args.LPConfig.Encode()
	if err := requireTracked(ctx, a.ID(), config); err != nil {
		return err
	}
	pool, err := ctx.Env.PoolByID(args.Pool)
	if err != nil {
		return err
	}

	switch call.Method {
	case "join":
		_, err := pool.Join(ctx.VaultAddress, args.Amounts)
		return err

	case "exit":
		if args.Receiver != "" {
			if err := requireVaultReceiver(ctx.VaultAddress, args.Receiver); err != nil {
				return err
			}
		}
		shares := args.Shares
		if shares.IsNil() || shares.IsZero() {
			shares = pool.SharesOf(ctx.VaultAddress)
		}
		_, err := pool.Exit(ctx.VaultAddress, shares)
		return err

	default:
		return fmt.Errorf("%w: %s on %s", types.ErrUnknownMethod, call.Method, a.ID())
	}
}

var _ Adaptor = (*LPStakeAdaptor)(nil)
