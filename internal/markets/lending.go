package markets

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/vaultworks/cellar/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownMarketAsset = errors.New("asset has no market")
	ErrNotInMarket        = errors.New("account has not entered the market")
	ErrOutstandingBorrow  = errors.New("market has an outstanding borrow")
)

// MarketPosition is one entered market's contribution to an account's
// composite collateralization, exactly the inputs the health-factor
// evaluator needs. Balances are in the underlying's base units.
type MarketPosition struct {
	Denom             string
	CollateralBalance sdkmath.Int
	ExchangeRate      sdkmath.LegacyDec
	CollateralFactor  sdkmath.LegacyDec
	BorrowBalance     sdkmath.Int
	PriceUSD          sdkmath.LegacyDec
	Decimals          int
}

// LendingMarket is the boundary to one external lending protocol.
// Implementations return protocol-native errors; adaptors translate them
// into the cellar's taxonomy.
type LendingMarket interface {
	ID() string

	Supply(account, denom string, amount sdkmath.Int) error
	WithdrawSupply(account, denom string, amount sdkmath.Int) error
	SupplyOf(account, denom string) sdkmath.Int

	// EnterMarket pledges the account's supply in denom as borrow collateral.
	EnterMarket(account, denom string) error
	ExitMarket(account, denom string) error
	InMarket(account, denom string) bool

	Borrow(account, denom string, amount sdkmath.Int) error
	Repay(account, denom string, amount sdkmath.Int) error
	BorrowOf(account, denom string) sdkmath.Int

	// AccountData returns every market the account has entered or borrowed
	// from, with the collateral/debt figures priced by the protocol.
	AccountData(account string) []MarketPosition
}

// MarketParams configures one asset market inside a SimLendingMarket.
type MarketParams struct {
	Token            types.Token
	CollateralFactor sdkmath.LegacyDec
	ExchangeRate     sdkmath.LegacyDec
}

// SimLendingMarket is an in-memory lending protocol. Funds move through the
// bank ledger against the market's own pool account. It does not enforce
// collateralization itself; that is deliberate, so the cellar's own
// health-factor guard is the only thing standing between a bad strategist
// call and an undercollateralized vault.
type SimLendingMarket struct {
	id      string
	bank    *SimBank
	params  map[string]MarketParams
	supply  map[string]map[string]sdkmath.Int
	borrow  map[string]map[string]sdkmath.Int
	entered map[string]map[string]bool
}

// NewSimLendingMarket creates a lending protocol over the given asset markets.
func NewSimLendingMarket(id string, bank *SimBank, params map[string]MarketParams) *SimLendingMarket {
	return &SimLendingMarket{
		id:      id,
		bank:    bank,
		params:  params,
		supply:  make(map[string]map[string]sdkmath.Int),
		borrow:  make(map[string]map[string]sdkmath.Int),
		entered: make(map[string]map[string]bool),
	}
}

// ID returns the protocol identifier.
func (m *SimLendingMarket) ID() string { return m.id }

// poolAccount is the bank account holding the protocol's pooled liquidity.
func (m *SimLendingMarket) poolAccount() string { return "lending/" + m.id }

func (m *SimLendingMarket) market(denom string) (MarketParams, error) {
	p, ok := m.params[denom]
	if !ok {
		return MarketParams{}, fmt.Errorf("%w: %s in %s", ErrUnknownMarketAsset, denom, m.id)
	}
	return p, nil
}

// Supply deposits amount of denom into the protocol on the account's behalf.
func (m *SimLendingMarket) Supply(account, denom string, amount sdkmath.Int) error {
	if _, err := m.market(denom); err != nil {
		return err
	}
	if err := m.bank.Transfer(account, m.poolAccount(), sdk.Coin{Denom: denom, Amount: amount}); err != nil {
		return err
	}
	m.addTo(m.supply, account, denom, amount)
	return nil
}

// WithdrawSupply redeems amount of denom back to the account.
func (m *SimLendingMarket) WithdrawSupply(account, denom string, amount sdkmath.Int) error {
	if _, err := m.market(denom); err != nil {
		return err
	}
	have := m.SupplyOf(account, denom)
	if have.LT(amount) {
		return fmt.Errorf("%w: supplied %s%s, withdrawing %s", ErrInsufficientFunds, have, denom, amount)
	}
	if err := m.bank.Transfer(m.poolAccount(), account, sdk.Coin{Denom: denom, Amount: amount}); err != nil {
		return err
	}
	m.addTo(m.supply, account, denom, amount.Neg())
	return nil
}

// SupplyOf returns the account's supplied balance of denom.
func (m *SimLendingMarket) SupplyOf(account, denom string) sdkmath.Int {
	return m.get(m.supply, account, denom)
}

// EnterMarket pledges the account's supply in denom as collateral.
// Entering twice is an idempotency violation.
func (m *SimLendingMarket) EnterMarket(account, denom string) error {
	if _, err := m.market(denom); err != nil {
		return err
	}
	if m.entered[account][denom] {
		return fmt.Errorf("%w: %s in %s", types.ErrAlreadyInMarket, denom, m.id)
	}
	if m.entered[account] == nil {
		m.entered[account] = make(map[string]bool)
	}
	m.entered[account][denom] = true
	return nil
}

// ExitMarket unpledges the collateral. The protocol refuses to exit while a
// borrow against this market is outstanding.
func (m *SimLendingMarket) ExitMarket(account, denom string) error {
	if !m.entered[account][denom] {
		return fmt.Errorf("%w: %s in %s", ErrNotInMarket, denom, m.id)
	}
	if m.get(m.borrow, account, denom).IsPositive() {
		return fmt.Errorf("%w: %s in %s", ErrOutstandingBorrow, denom, m.id)
	}
	m.entered[account][denom] = false
	return nil
}

// InMarket reports whether the account has pledged denom as collateral.
func (m *SimLendingMarket) InMarket(account, denom string) bool {
	return m.entered[account][denom]
}

// Borrow lends amount of denom to the account from pooled liquidity.
func (m *SimLendingMarket) Borrow(account, denom string, amount sdkmath.Int) error {
	if _, err := m.market(denom); err != nil {
		return err
	}
	if err := m.bank.Transfer(m.poolAccount(), account, sdk.Coin{Denom: denom, Amount: amount}); err != nil {
		return err
	}
	m.addTo(m.borrow, account, denom, amount)
	return nil
}

// Repay pays down the account's borrow in denom.
func (m *SimLendingMarket) Repay(account, denom string, amount sdkmath.Int) error {
	owed := m.BorrowOf(account, denom)
	if owed.LT(amount) {
		return fmt.Errorf("%w: owed %s%s, repaying %s", ErrInvalidCoin, owed, denom, amount)
	}
	if err := m.bank.Transfer(account, m.poolAccount(), sdk.Coin{Denom: denom, Amount: amount}); err != nil {
		return err
	}
	m.addTo(m.borrow, account, denom, amount.Neg())
	return nil
}

// BorrowOf returns the account's outstanding borrow of denom.
func (m *SimLendingMarket) BorrowOf(account, denom string) sdkmath.Int {
	return m.get(m.borrow, account, denom)
}

// AccountData returns the health-factor inputs for every market the account
// touches. Collateral counts only where the account has entered the market.
func (m *SimLendingMarket) AccountData(account string) []MarketPosition {
	positions := make([]MarketPosition, 0)
	for denom, p := range m.params {
		enteredHere := m.entered[account][denom]
		borrowed := m.get(m.borrow, account, denom)
		if !enteredHere && !borrowed.IsPositive() {
			continue
		}

		collateral := sdkmath.ZeroInt()
		if enteredHere {
			collateral = m.get(m.supply, account, denom)
		}

		positions = append(positions, MarketPosition{
			Denom:             denom,
			CollateralBalance: collateral,
			ExchangeRate:      p.ExchangeRate,
			CollateralFactor:  p.CollateralFactor,
			BorrowBalance:     borrowed,
			PriceUSD:          p.Token.PriceUSD,
			Decimals:          p.Token.Decimals,
		})
	}
	return positions
}

func (m *SimLendingMarket) addTo(table map[string]map[string]sdkmath.Int, account, denom string, delta sdkmath.Int) {
	if table[account] == nil {
		table[account] = make(map[string]sdkmath.Int)
	}
	cur, ok := table[account][denom]
	if !ok {
		cur = sdkmath.ZeroInt()
	}
	table[account][denom] = cur.Add(delta)
}

func (m *SimLendingMarket) get(table map[string]map[string]sdkmath.Int, account, denom string) sdkmath.Int {
	cur, ok := table[account][denom]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return cur
}

// clone deep-copies protocol state onto a fresh bank reference.
func (m *SimLendingMarket) clone(bank *SimBank) *SimLendingMarket {
	out := NewSimLendingMarket(m.id, bank, m.params)
	out.supply = cloneTable(m.supply)
	out.borrow = cloneTable(m.borrow)
	for account, flags := range m.entered {
		cp := make(map[string]bool, len(flags))
		for denom, v := range flags {
			cp[denom] = v
		}
		out.entered[account] = cp
	}
	return out
}

func cloneTable(table map[string]map[string]sdkmath.Int) map[string]map[string]sdkmath.Int {
	out := make(map[string]map[string]sdkmath.Int, len(table))
	for account, amounts := range table {
		cp := make(map[string]sdkmath.Int, len(amounts))
		for denom, v := range amounts {
			cp[denom] = v
		}
		out[account] = cp
	}
	return out
}
