package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vaultworks/cellar/internal/logger"
	"github.com/vaultworks/cellar/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrEmptyAdaptorID  = errors.New("adaptor id cannot be empty")
	ErrDebtFlagChanged = errors.New("position debt flag cannot change")
)

var registryLogger = logger.GetForComponent("registry")

// Registry is the process-wide trust store mapping position ids to
// (adaptor, config) pairs. The id->pair mapping is append-only: a position is
// never deleted, only marked untrusted, which freezes but does not remove
// existing cellar references.
type Registry struct {
	mu sync.RWMutex

	// positions is a dense arena; id N lives at positions[N-1].
	positions []types.Position

	trustedAdaptors map[string]bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		trustedAdaptors: make(map[string]bool),
	}
}

// TrustAdaptor marks an adaptor id usable. Idempotent.
func (r *Registry) TrustAdaptor(adaptorID string) error {
	if adaptorID == "" {
		return ErrEmptyAdaptorID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.trustedAdaptors[adaptorID] {
		r.trustedAdaptors[adaptorID] = true
		registryLogger.Info().Str("adaptor", adaptorID).Msg("Adaptor trusted")
	}
	return nil
}

// DistrustAdaptor marks an adaptor untrusted. Cellars already using it may
// still exit their positions but may not add new exposure.
func (r *Registry) DistrustAdaptor(adaptorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.trustedAdaptors[adaptorID] {
		r.trustedAdaptors[adaptorID] = false
		registryLogger.Warn().Str("adaptor", adaptorID).Msg("Adaptor distrusted")
	}
}

// IsAdaptorTrusted reports whether the adaptor is currently trusted.
func (r *Registry) IsAdaptorTrusted(adaptorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.trustedAdaptors[adaptorID]
}

// TrustPosition assigns a new monotonically increasing id to the
// (adaptor, config) pair. Trusting an identical pair again returns the
// existing id; an id can never be re-bound to different data.
func (r *Registry) TrustPosition(adaptorID string, config []byte, isDebt bool) (types.PositionID, error) {
	if adaptorID == "" {
		return 0, ErrEmptyAdaptorID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.trustedAdaptors[adaptorID] {
		return 0, fmt.Errorf("%w: %s", types.ErrUntrustedAdaptor, adaptorID)
	}

	for i := range r.positions {
		if r.positions[i].Matches(adaptorID, config) {
			// An id is bound to its data forever; the debt flag is part of
			// that data, not something a re-trust may flip.
			if r.positions[i].IsDebt != isDebt {
				return 0, fmt.Errorf("%w: position %d", ErrDebtFlagChanged, r.positions[i].ID)
			}
			// Re-trusting the same pair revives a distrusted record.
			r.positions[i].IsTrusted = true
			return r.positions[i].ID, nil
		}
	}

	id := types.PositionID(len(r.positions) + 1)
	cfg := make([]byte, len(config))
	copy(cfg, config)

	r.positions = append(r.positions, types.Position{
		ID:        id,
		AdaptorID: adaptorID,
		Config:    cfg,
		IsDebt:    isDebt,
		IsTrusted: true,
	})

	registryLogger.Info().
		Uint32("id", uint32(id)).
		Str("adaptor", adaptorID).
		Bool("isDebt", isDebt).
		Msg("Position trusted")

	return id, nil
}

// DistrustPosition marks a position untrusted. It does not retroactively
// invalidate cellars already holding it.
func (r *Registry) DistrustPosition(id types.PositionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := int(id) - 1
	if idx < 0 || idx >= len(r.positions) {
		return fmt.Errorf("%w: %d", types.ErrUnknownPosition, id)
	}

	r.positions[idx].IsTrusted = false
	registryLogger.Warn().Uint32("id", uint32(id)).Msg("Position distrusted")
	return nil
}

// Position returns the record for an id.
func (r *Registry) Position(id types.PositionID) (types.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := int(id) - 1
	if idx < 0 || idx >= len(r.positions) {
		return types.Position{}, fmt.Errorf("%w: %d", types.ErrUnknownPosition, id)
	}
	return r.positions[idx], nil
}

// IsPositionTrusted reports whether the id exists and is currently trusted.
func (r *Registry) IsPositionTrusted(id types.PositionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := int(id) - 1
	if idx < 0 || idx >= len(r.positions) {
		return false
	}
	return r.positions[idx].IsTrusted
}

// PositionFor returns the trusted position id bound to the pair, if any.
// This is how adaptors verify that the market they are about to touch is one
// the accounting layer can see.
func (r *Registry) PositionFor(adaptorID string, config []byte) (types.PositionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.positions {
		if r.positions[i].Matches(adaptorID, config) && r.positions[i].IsTrusted {
			return r.positions[i].ID, true
		}
	}
	return 0, false
}

// Count returns the number of registered positions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}
