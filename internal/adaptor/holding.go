package adaptor

import (
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrBadConfig = errors.New("position config is invalid")
)

// HoldingConfig identifies a plain token holding position.
type HoldingConfig struct {
	Denom string `json:"denom"`
}

// Encode returns the canonical config bytes for this holding position.
func (c HoldingConfig) Encode() []byte {
	out, _ := json.Marshal(c)
	return out
}

func decodeHoldingConfig(config []byte) (HoldingConfig, error) {
	var c HoldingConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return HoldingConfig{}, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	if c.Denom == "" {
		return HoldingConfig{}, fmt.Errorf("%w: denom is empty", ErrBadConfig)
	}
	return c, nil
}

// HoldingAdaptor holds raw tokens in the vault's own bank account. It is the
// usual holding position: deposits land here before the strategist deploys
// them, and it is always fully liquid.
type HoldingAdaptor struct{}

// NewHoldingAdaptor creates the passthrough holding adaptor.
func NewHoldingAdaptor() *HoldingAdaptor { return &HoldingAdaptor{} }

func (a *HoldingAdaptor) ID() string   { return "holding/v1" }
func (a *HoldingAdaptor) IsDebt() bool { return false }

func (a *HoldingAdaptor) AssetOf(config []byte) (string, error) {
	c, err := decodeHoldingConfig(config)
	if err != nil {
		return "", err
	}
	return c.Denom, nil
}

func (a *HoldingAdaptor) AssetsUsed(config []byte) ([]string, error) {
	denom, err := a.AssetOf(config)
	if err != nil {
		return nil, err
	}
	return []string{denom}, nil
}

func (a *HoldingAdaptor) BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	c, err := decodeHoldingConfig(config)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return env.Bank.BalanceOf(vault, c.Denom), nil
}

func (a *HoldingAdaptor) WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	return a.BalanceOf(env, vault, config)
}

// Deposit is a no-op beyond validation: the cellar has already credited the
// vault's bank account, which is exactly where a holding position lives.
func (a *HoldingAdaptor) Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error {
	c, err := decodeHoldingConfig(config)
	if err != nil {
		return err
	}
	have := env.Bank.BalanceOf(vault, c.Denom)
	if have.LT(amount) {
		return fmt.Errorf("%w: holding %s, depositing %s%s", markets.ErrInsufficientFunds, have, amount, c.Denom)
	}
	return nil
}

func (a *HoldingAdaptor) Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error {
	if err := requireVaultReceiver(vault, receiver); err != nil {
		return err
	}
	c, err := decodeHoldingConfig(config)
	if err != nil {
		return err
	}
	have := env.Bank.BalanceOf(vault, c.Denom)
	if have.LT(amount) {
		return fmt.Errorf("%w: holding %s, withdrawing %s%s", markets.ErrInsufficientFunds, have, amount, c.Denom)
	}
	// Funds already sit in the vault's bank account.
	return nil
}

// StrategistCall: a holding position has no strategist-only operations.
// Funds enter and leave it through other adaptors' deposits and withdrawals.
func (a *HoldingAdaptor) StrategistCall(ctx CallContext, call types.StrategistCall) error {
	return fmt.Errorf("%w: %s on %s", types.ErrUnknownMethod, call.Method, a.ID())
}

// ensure interface compliance
var _ Adaptor = (*HoldingAdaptor)(nil)
