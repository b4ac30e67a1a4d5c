/*

This file contains the strategist-gated position list and catalogue
management: two-step governance (registry trust, then vault catalogue, then
list membership), holding position selection, and the tracked-position check
handed to adaptors.

*/

package cellar

import (
	"fmt"

	"github.com/vaultworks/cellar/internal/types"
)

func (c *Cellar) requireStrategist(caller string) error {
	if caller != c.strategist {
		return fmt.Errorf("%w: %s", ErrNotStrategist, caller)
	}
	return nil
}

// AddAdaptorToCatalogue approves a registry-trusted adaptor for this vault.
func (c *Cellar) AddAdaptorToCatalogue(caller, adaptorID string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}
	if !c.registry.IsAdaptorTrusted(adaptorID) {
		return fmt.Errorf("%w: %s", types.ErrUntrustedAdaptor, adaptorID)
	}
	if _, ok := c.adaptors[adaptorID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAdaptor, adaptorID)
	}
	c.adaptorCatalogue[adaptorID] = true
	return nil
}

// RemoveAdaptorFromCatalogue revokes an adaptor's vault-level approval.
// Positions already in the list keep working; new strategist calls through
// the adaptor stop.
func (c *Cellar) RemoveAdaptorFromCatalogue(caller, adaptorID string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}
	delete(c.adaptorCatalogue, adaptorID)
	return nil
}

// AddPositionToCatalogue approves a registry-trusted position for this vault.
// The position's adaptor must already be catalogued.
func (c *Cellar) AddPositionToCatalogue(caller string, id types.PositionID) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}
	record, err := c.registry.Position(id)
	if err != nil {
		return err
	}
	if !record.IsTrusted {
		return fmt.Errorf("%w: position %d", types.ErrUnknownPosition, id)
	}
	if !c.adaptorCatalogue[record.AdaptorID] {
		return fmt.Errorf("%w: %s", types.ErrAdaptorNotInCatalogue, record.AdaptorID)
	}
	c.positionCatalogue[id] = true
	return nil
}

// RemovePositionFromCatalogue revokes a position's vault-level approval.
func (c *Cellar) RemovePositionFromCatalogue(caller string, id types.PositionID) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}
	delete(c.positionCatalogue, id)
	return nil
}

// AddPosition inserts a catalogued position into the ordered list at index.
// A nil config adopts the registry's canonical config for the position.
func (c *Cellar) AddPosition(caller string, index int, id types.PositionID, config []byte) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}

	record, err := c.registry.Position(id)
	if err != nil {
		return err
	}
	if !record.IsTrusted {
		return fmt.Errorf("%w: position %d", types.ErrUnknownPosition, id)
	}
	if !c.positionCatalogue[id] {
		return fmt.Errorf("%w: position %d", types.ErrPositionNotInCatalogue, id)
	}
	for _, pos := range c.positions {
		if pos.ID == id {
			return fmt.Errorf("%w: position %d", ErrDuplicatePattern, id)
		}
	}
	if index < 0 || index > len(c.positions) {
		return fmt.Errorf("%w: %d with %d positions", ErrBadIndex, index, len(c.positions))
	}
	if config == nil {
		config = record.Config
	}

	pos := types.CellarPosition{ID: id, Config: config, IsDebt: record.IsDebt}
	c.positions = append(c.positions, types.CellarPosition{})
	copy(c.positions[index+1:], c.positions[index:])
	c.positions[index] = pos

	cellarLogger.Info().
		Uint32("positionId", uint32(id)).
		Int("index", index).
		Bool("isDebt", record.IsDebt).
		Msg("Position added to list")

	return nil
}

// RemovePosition drops the position at index from the list. A position with
// remaining balance is refused unless force is set; force abandons the value,
// which is the intended escape hatch for a bricked external protocol.
func (c *Cellar) RemovePosition(caller string, index int, force bool) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}
	if index < 0 || index >= len(c.positions) {
		return fmt.Errorf("%w: %d with %d positions", ErrBadIndex, index, len(c.positions))
	}
	pos := c.positions[index]
	if pos.ID == c.holdingID {
		return fmt.Errorf("%w: cannot remove the holding position", types.ErrHoldingPositionInvalid)
	}

	if !force {
		_, a, err := c.resolve(pos.ID)
		if err != nil {
			return err
		}
		balance, err := a.BalanceOf(c.env, c.address, pos.Config)
		if err != nil {
			return err
		}
		if balance.IsPositive() {
			return fmt.Errorf("%w: position %d holds %s", types.ErrPositionNotEmpty, pos.ID, balance)
		}
	}

	c.positions = append(c.positions[:index], c.positions[index+1:]...)

	cellarLogger.Info().
		Uint32("positionId", uint32(pos.ID)).
		Bool("force", force).
		Msg("Position removed from list")

	return nil
}

// SwapPositions exchanges two list slots, reordering the withdrawal queue.
func (c *Cellar) SwapPositions(caller string, i, j int) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}
	if i < 0 || i >= len(c.positions) || j < 0 || j >= len(c.positions) {
		return fmt.Errorf("%w: %d,%d with %d positions", ErrBadIndex, i, j, len(c.positions))
	}
	c.positions[i], c.positions[j] = c.positions[j], c.positions[i]
	return nil
}

// SetHoldingPosition designates the list member deposits route into. It must
// be a credit position denominated in the base asset.
func (c *Cellar) SetHoldingPosition(caller string, id types.PositionID) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()
	if err := c.requireStrategist(caller); err != nil {
		return err
	}

	var found *types.CellarPosition
	for i := range c.positions {
		if c.positions[i].ID == id {
			found = &c.positions[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w: position %d is not in the list", types.ErrHoldingPositionInvalid, id)
	}
	if found.IsDebt {
		return fmt.Errorf("%w: position %d is a debt position", types.ErrHoldingPositionInvalid, id)
	}

	_, a, err := c.resolve(id)
	if err != nil {
		return err
	}
	denom, err := a.AssetOf(found.Config)
	if err != nil {
		return err
	}
	if denom != c.baseDenom {
		return fmt.Errorf("%w: position asset %s, base %s", types.ErrHoldingPositionInvalid, denom, c.baseDenom)
	}

	c.holdingID = id
	return nil
}

// HoldingPositionID returns the current holding position id.
func (c *Cellar) HoldingPositionID() types.PositionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdingID
}

// Positions returns a copy of the ordered position list.
func (c *Cellar) Positions() []types.CellarPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.CellarPosition, len(c.positions))
	copy(out, c.positions)
	return out
}

// PositionValues returns the per-position balances and base-denom values,
// in list order.
func (c *Cellar) PositionValues() ([]types.PositionValue, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	out := make([]types.PositionValue, 0, len(c.positions))
	for _, pos := range c.positions {
		record, a, err := c.resolve(pos.ID)
		if err != nil {
			return nil, err
		}
		balance, err := a.BalanceOf(c.env, c.address, pos.Config)
		if err != nil {
			return nil, err
		}
		denom, err := a.AssetOf(pos.Config)
		if err != nil {
			return nil, err
		}
		value, err := c.oracle.GetValue(denom, balance, c.baseDenom)
		if err != nil {
			return nil, err
		}
		out = append(out, types.PositionValue{
			ID:        pos.ID,
			AdaptorID: record.AdaptorID,
			Denom:     denom,
			Balance:   balance.String(),
			BaseValue: value.String(),
			IsDebt:    record.IsDebt,
		})
	}
	return out, nil
}

// isTracked is the callback adaptors consult before mutating external state:
// the (adaptor, config) pair must resolve to a registry-trusted position that
// is in this vault's list.
func (c *Cellar) isTracked(adaptorID string, config []byte) bool {
	id, ok := c.registry.PositionFor(adaptorID, config)
	if !ok {
		return false
	}
	if !c.registry.IsPositionTrusted(id) {
		return false
	}
	for _, pos := range c.positions {
		if pos.ID == id {
			return true
		}
	}
	return false
}
