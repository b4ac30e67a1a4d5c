package adaptor

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/types"
)

// RewardsConfig identifies an incentive program the vault can claim from.
type RewardsConfig struct {
	Distributor string `json:"distributor"`
	Quote       string `json:"quote"`
}

// Encode returns the canonical config bytes for this claim position.
func (c RewardsConfig) Encode() []byte {
	out, _ := json.Marshal(c)
	return out
}

func decodeRewardsConfig(config []byte) (RewardsConfig, error) {
	var c RewardsConfig
	if err := json.Unmarshal(config, &c); err != nil {
		return RewardsConfig{}, fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	if c.Distributor == "" || c.Quote == "" {
		return RewardsConfig{}, fmt.Errorf("%w: distributor and quote are required", ErrBadConfig)
	}
	return c, nil
}

// RewardClaimAdaptor is claim-only: it exists purely for the side effect of
// pulling accrued incentives into the vault. Unclaimed rewards are not
// counted as vault value.
type RewardClaimAdaptor struct{}

// NewRewardClaimAdaptor creates the claim adaptor.
func NewRewardClaimAdaptor() *RewardClaimAdaptor { return &RewardClaimAdaptor{} }

func (a *RewardClaimAdaptor) ID() string   { return "reward-claim/v1" }
func (a *RewardClaimAdaptor) IsDebt() bool { return false }

func (a *RewardClaimAdaptor) AssetOf(config []byte) (string, error) {
	c, err := decodeRewardsConfig(config)
	if err != nil {
		return "", err
	}
	return c.Quote, nil
}

func (a *RewardClaimAdaptor) AssetsUsed(config []byte) ([]string, error) {
	quote, err := a.AssetOf(config)
	if err != nil {
		return nil, err
	}
	return []string{quote}, nil
}

// BalanceOf is always zero; claimed rewards land in the holding position.
func (a *RewardClaimAdaptor) BalanceOf(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	if _, err := decodeRewardsConfig(config); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.ZeroInt(), nil
}

func (a *RewardClaimAdaptor) WithdrawableFrom(env *markets.Environment, vault string, config []byte) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), nil
}

func (a *RewardClaimAdaptor) Deposit(env *markets.Environment, vault string, config []byte, amount sdkmath.Int) error {
	return fmt.Errorf("%w: deposit on %s", types.ErrUnknownMethod, a.ID())
}

func (a *RewardClaimAdaptor) Withdraw(env *markets.Environment, vault string, config []byte, amount sdkmath.Int, receiver string) error {
	return fmt.Errorf("%w: withdraw on %s", types.ErrUnknownMethod, a.ID())
}

func (a *RewardClaimAdaptor) StrategistCall(ctx CallContext, call types.StrategistCall) error {
	var args RewardsConfig
	if err := decodeArgs(call, &args); err != nil {
		return err
	}
	config := args.Encode()
	if err := requireTracked(ctx, a.ID(), config); err != nil {
		return err
	}
	distributor, err := ctx.Env.RewardsByID(args.Distributor)
	if err != nil {
		return err
	}

	switch call.Method {
	case "claim":
		_, err := distributor.Claim(ctx.VaultAddress)
		return err
	default:
		return fmt.Errorf("%w: %s on %s", types.ErrUnknownMethod, call.Method, a.ID())
	}
}

var _ Adaptor = (*RewardClaimAdaptor)(nil)
