package markets

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrPoolAssetMismatch = errors.New("coin is not a pool asset")
	ErrInsufficientLP    = errors.New("insufficient LP shares")
	ErrEmptyJoin         = errors.New("join amounts cannot be empty")
)

// AMMPool is the boundary to one external liquidity pool.
type AMMPool interface {
	ID() string
	PoolTokens() []string
	Join(account string, amounts sdk.Coins) (sdkmath.Int, error)
	Exit(account string, shares sdkmath.Int) (sdk.Coins, error)
	SharesOf(account string) sdkmath.Int
	ShareValue(shares sdkmath.Int) sdk.Coins
}

// SimAMMPool is an in-memory constant-reserve pool. Shares are minted in
// proportion to the value the join adds to the reserves, measured naively as
// the sum of base units; good enough for exercising the cellar's accounting,
// which never relies on pool internals.
type SimAMMPool struct {
	id          string
	bank        *SimBank
	tokens      []string
	reserves    sdk.Coins
	totalShares sdkmath.Int
	shares      map[string]sdkmath.Int
}

// NewSimAMMPool creates an empty pool over the given token pair (or more).
func NewSimAMMPool(id string, bank *SimBank, tokens []string) *SimAMMPool {
	return &SimAMMPool{
		id:          id,
		bank:        bank,
		tokens:      tokens,
		reserves:    sdk.Coins{},
		totalShares: sdkmath.ZeroInt(),
		shares:      make(map[string]sdkmath.Int),
	}
}

// ID returns the pool identifier.
func (p *SimAMMPool) ID() string { return p.id }

// PoolTokens returns the denoms the pool holds.
func (p *SimAMMPool) PoolTokens() []string {
	out := make([]string, len(p.tokens))
	copy(out, p.tokens)
	return out
}

func (p *SimAMMPool) poolAccount() string { return "amm/" + p.id }

func (p *SimAMMPool) isPoolToken(denom string) bool {
	for _, t := range p.tokens {
		if t == denom {
			return true
		}
	}
	return false
}

// Join deposits amounts into the pool and mints LP shares to the account.
func (p *SimAMMPool) Join(account string, amounts sdk.Coins) (sdkmath.Int, error) {
	if amounts.IsZero() {
		return sdkmath.ZeroInt(), ErrEmptyJoin
	}
	for _, coin := range amounts {
		if !p.isPoolToken(coin.Denom) {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %s in %s", ErrPoolAssetMismatch, coin.Denom, p.id)
		}
	}

	joinUnits := sdkmath.ZeroInt()
	for _, coin := range amounts {
		if err := p.bank.Transfer(account, p.poolAccount(), coin); err != nil {
			return sdkmath.ZeroInt(), err
		}
		joinUnits = joinUnits.Add(coin.Amount)
	}

	var minted sdkmath.Int
	if p.totalShares.IsZero() {
		minted = joinUnits
	} else {
		reserveUnits := sdkmath.ZeroInt()
		for _, coin := range p.reserves {
			reserveUnits = reserveUnits.Add(coin.Amount)
		}
		minted = joinUnits.Mul(p.totalShares).Quo(reserveUnits)
	}

	p.reserves = p.reserves.Add(amounts...)
	p.totalShares = p.totalShares.Add(minted)
	p.addShares(account, minted)
	return minted, nil
}

// Exit burns LP shares and returns the proportional slice of every reserve.
func (p *SimAMMPool) Exit(account string, shares sdkmath.Int) (sdk.Coins, error) {
	have := p.SharesOf(account)
	if have.LT(shares) {
		return nil, fmt.Errorf("%w: have %s, exiting %s", ErrInsufficientLP, have, shares)
	}

	out := sdk.Coins{}
	for _, coin := range p.reserves {
		amount := coin.Amount.Mul(shares).Quo(p.totalShares)
		if amount.IsPositive() {
			out = out.Add(sdk.Coin{Denom: coin.Denom, Amount: amount})
		}
	}

	for _, coin := range out {
		if err := p.bank.Transfer(p.poolAccount(), account, coin); err != nil {
			return nil, err
		}
	}

	p.reserves = p.reserves.Sub(out...)
	p.totalShares = p.totalShares.Sub(shares)
	p.addShares(account, shares.Neg())
	return out, nil
}

// SharesOf returns the account's LP share balance.
func (p *SimAMMPool) SharesOf(account string) sdkmath.Int {
	cur, ok := p.shares[account]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return cur
}

// ShareValue reports the reserve slice shares currently redeem for.
func (p *SimAMMPool) ShareValue(shares sdkmath.Int) sdk.Coins {
	out := sdk.Coins{}
	if p.totalShares.IsZero() || !shares.IsPositive() {
		return out
	}
	for _, coin := range p.reserves {
		amount := coin.Amount.Mul(shares).Quo(p.totalShares)
		if amount.IsPositive() {
			out = out.Add(sdk.Coin{Denom: coin.Denom, Amount: amount})
		}
	}
	return out
}

func (p *SimAMMPool) addShares(account string, delta sdkmath.Int) {
	cur, ok := p.shares[account]
	if !ok {
		cur = sdkmath.ZeroInt()
	}
	p.shares[account] = cur.Add(delta)
}

// clone deep-copies pool state onto a fresh bank reference.
func (p *SimAMMPool) clone(bank *SimBank) *SimAMMPool {
	out := NewSimAMMPool(p.id, bank, p.tokens)
	out.reserves = make(sdk.Coins, len(p.reserves))
	copy(out.reserves, p.reserves)
	out.totalShares = p.totalShares
	for account, s := range p.shares {
		out.shares[account] = s
	}
	return out
}
