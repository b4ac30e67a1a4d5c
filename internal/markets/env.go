package markets

import (
	"errors"
	"fmt"

	"github.com/vaultworks/cellar/internal/logger"
)

// Error definitions for zero-tolerance error handling
var (
	ErrUnknownLendingMarket = errors.New("unknown lending market")
	ErrUnknownPool          = errors.New("unknown AMM pool")
	ErrUnknownDistributor   = errors.New("unknown rewards distributor")
	ErrBadSnapshotID        = errors.New("snapshot id is invalid")
)

var envLogger = logger.GetForComponent("markets_env")

// Environment aggregates every external protocol the cellar's adaptors can
// reach, plus a block clock. Snapshot/Revert give the dispatcher whole-batch
// atomicity: either all of a strategist batch's effects persist, or none do.
type Environment struct {
	Bank    *SimBank
	Lending map[string]*SimLendingMarket
	Pools   map[string]*SimAMMPool
	Rewards map[string]*SimRewards

	height    int64
	snapshots []*Environment
}

// NewEnvironment creates an environment around a fresh bank ledger.
func NewEnvironment() *Environment {
	return &Environment{
		Bank:    NewSimBank(),
		Lending: make(map[string]*SimLendingMarket),
		Pools:   make(map[string]*SimAMMPool),
		Rewards: make(map[string]*SimRewards),
		height:  1,
	}
}

// LendingMarketByID resolves a lending protocol by id.
func (e *Environment) LendingMarketByID(id string) (*SimLendingMarket, error) {
	m, ok := e.Lending[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLendingMarket, id)
	}
	return m, nil
}

// PoolByID resolves an AMM pool by id.
func (e *Environment) PoolByID(id string) (*SimAMMPool, error) {
	p, ok := e.Pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, id)
	}
	return p, nil
}

// RewardsByID resolves a distributor by id.
func (e *Environment) RewardsByID(id string) (*SimRewards, error) {
	r, ok := e.Rewards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDistributor, id)
	}
	return r, nil
}

// BlockHeight returns the current simulated height.
func (e *Environment) BlockHeight() int64 { return e.height }

// AdvanceBlocks moves the simulated clock forward.
func (e *Environment) AdvanceBlocks(n int64) { e.height += n }

// Snapshot deep-copies every protocol's state and returns a handle for Revert.
func (e *Environment) Snapshot() int {
	e.snapshots = append(e.snapshots, e.copyState())
	return len(e.snapshots) - 1
}

// Revert restores the state captured by Snapshot and discards newer snapshots.
func (e *Environment) Revert(id int) error {
	if id < 0 || id >= len(e.snapshots) {
		return fmt.Errorf("%w: %d", ErrBadSnapshotID, id)
	}
	saved := e.snapshots[id]
	e.restoreState(saved)
	e.snapshots = e.snapshots[:id]

	envLogger.Debug().Int("snapshot", id).Msg("Environment reverted")
	return nil
}

// Commit discards the snapshot without restoring it.
func (e *Environment) Commit(id int) error {
	if id < 0 || id >= len(e.snapshots) {
		return fmt.Errorf("%w: %d", ErrBadSnapshotID, id)
	}
	e.snapshots = e.snapshots[:id]
	return nil
}

func (e *Environment) copyState() *Environment {
	bank := e.Bank.clone()
	cp := &Environment{
		Bank:    bank,
		Lending: make(map[string]*SimLendingMarket, len(e.Lending)),
		Pools:   make(map[string]*SimAMMPool, len(e.Pools)),
		Rewards: make(map[string]*SimRewards, len(e.Rewards)),
		height:  e.height,
	}
	for id, m := range e.Lending {
		cp.Lending[id] = m.clone(bank)
	}
	for id, p := range e.Pools {
		cp.Pools[id] = p.clone(bank)
	}
	for id, r := range e.Rewards {
		cp.Rewards[id] = r.clone(bank)
	}
	return cp
}

func (e *Environment) restoreState(saved *Environment) {
	e.Bank = saved.Bank
	e.Lending = saved.Lending
	e.Pools = saved.Pools
	e.Rewards = saved.Rewards
	e.height = saved.height
}
