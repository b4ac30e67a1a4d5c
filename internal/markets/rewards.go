package markets

import (
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// RewardsDistributor is the boundary to an external incentive program.
type RewardsDistributor interface {
	ID() string
	// Pending returns the rewards claimable by the account.
	Pending(account string) sdk.Coins
	// Claim pays out every pending reward to the account.
	Claim(account string) (sdk.Coins, error)
}

// SimRewards is an in-memory distributor. Rewards accrue by explicit Accrue
// calls from test or genesis setup.
type SimRewards struct {
	id      string
	bank    *SimBank
	pending map[string]sdk.Coins
}

// NewSimRewards creates an empty distributor.
func NewSimRewards(id string, bank *SimBank) *SimRewards {
	return &SimRewards{
		id:      id,
		bank:    bank,
		pending: make(map[string]sdk.Coins),
	}
}

// ID returns the distributor identifier.
func (r *SimRewards) ID() string { return r.id }

func (r *SimRewards) poolAccount() string { return "rewards/" + r.id }

// Accrue credits a future payout to the account.
func (r *SimRewards) Accrue(account string, coin sdk.Coin) error {
	if err := r.bank.Mint(r.poolAccount(), coin); err != nil {
		return err
	}
	r.pending[account] = r.pending[account].Add(coin)
	return nil
}

// Pending returns the rewards claimable by the account.
func (r *SimRewards) Pending(account string) sdk.Coins {
	coins := r.pending[account]
	out := make(sdk.Coins, len(coins))
	copy(out, coins)
	return out
}

// Claim pays out every pending reward to the account.
func (r *SimRewards) Claim(account string) (sdk.Coins, error) {
	coins := r.pending[account]
	for _, coin := range coins {
		if err := r.bank.Transfer(r.poolAccount(), account, coin); err != nil {
			return nil, err
		}
	}
	r.pending[account] = sdk.Coins{}
	out := make(sdk.Coins, len(coins))
	copy(out, coins)
	return out, nil
}

// clone deep-copies distributor state onto a fresh bank reference.
func (r *SimRewards) clone(bank *SimBank) *SimRewards {
	out := NewSimRewards(r.id, bank)
	for account, coins := range r.pending {
		cp := make(sdk.Coins, len(coins))
		copy(cp, coins)
		out.pending[account] = cp
	}
	return out
}
