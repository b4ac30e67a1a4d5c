package markets

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidCoin       = errors.New("coin is invalid")
	ErrEmptyAccount      = errors.New("account cannot be empty")
)

// Bank is the fungible-token ledger external protocols settle against.
type Bank interface {
	BalanceOf(account, denom string) sdkmath.Int
	AllBalances(account string) sdk.Coins
	Transfer(from, to string, coin sdk.Coin) error
	Mint(account string, coin sdk.Coin) error
}

// SimBank is an in-memory bank ledger.
type SimBank struct {
	balances map[string]sdk.Coins
}

// NewSimBank creates an empty ledger.
func NewSimBank() *SimBank {
	return &SimBank{balances: make(map[string]sdk.Coins)}
}

// BalanceOf returns the account's balance in one denom.
func (b *SimBank) BalanceOf(account, denom string) sdkmath.Int {
	return b.balances[account].AmountOf(denom)
}

// AllBalances returns a copy of every balance held by the account.
func (b *SimBank) AllBalances(account string) sdk.Coins {
	coins := b.balances[account]
	out := make(sdk.Coins, len(coins))
	copy(out, coins)
	return out
}

// Transfer moves coin from one account to another.
func (b *SimBank) Transfer(from, to string, coin sdk.Coin) error {
	if from == "" || to == "" {
		return ErrEmptyAccount
	}
	if coin.Amount.IsNil() || coin.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidCoin, coin.String())
	}
	if coin.Amount.IsZero() {
		return nil
	}

	have := b.balances[from].AmountOf(coin.Denom)
	if have.LT(coin.Amount) {
		return fmt.Errorf("%w: %s has %s%s, needs %s", ErrInsufficientFunds, from, have, coin.Denom, coin.Amount)
	}

	b.balances[from] = b.balances[from].Sub(coin)
	b.balances[to] = b.balances[to].Add(coin)
	return nil
}

// Mint credits coin to the account out of thin air. Test and genesis use only.
func (b *SimBank) Mint(account string, coin sdk.Coin) error {
	if account == "" {
		return ErrEmptyAccount
	}
	if coin.Amount.IsNil() || coin.Amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidCoin, coin.String())
	}
	b.balances[account] = b.balances[account].Add(coin)
	return nil
}

// clone deep-copies the ledger for environment snapshots.
func (b *SimBank) clone() *SimBank {
	out := NewSimBank()
	for account, coins := range b.balances {
		cp := make(sdk.Coins, len(coins))
		copy(cp, coins)
		out.balances[account] = cp
	}
	return out
}
