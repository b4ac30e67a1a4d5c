package steward

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vaultworks/cellar/internal/cellar"
	"github.com/vaultworks/cellar/internal/logger"
	"github.com/vaultworks/cellar/internal/markets"
	"github.com/vaultworks/cellar/internal/state"
	"github.com/vaultworks/cellar/internal/types"
	"github.com/vaultworks/cellar/internal/utils"
)

// Steward runs the periodic observation loop: each cycle it revalues the
// vault, persists a snapshot, and advances the simulated block clock so share
// locks expire over time.
type Steward struct {
	logger zerolog.Logger
	cellar *cellar.Cellar
	env    *markets.Environment

	// BlocksPerCycle is how far the simulated clock moves each cycle.
	blocksPerCycle int64

	// baseDecimals is the base denom's exponent, for display-unit logging.
	baseDecimals int
}

// Config holds the configuration for creating a new Steward instance
type Config struct {
	Cellar         *cellar.Cellar
	Env            *markets.Environment
	BlocksPerCycle int64
	BaseDecimals   int
}

// New creates a steward with dependency injection.
func New(cfg Config) (*Steward, error) {
	if cfg.Cellar == nil {
		return nil, fmt.Errorf("cellar cannot be nil")
	}
	if cfg.Env == nil {
		return nil, fmt.Errorf("environment cannot be nil")
	}
	if cfg.BlocksPerCycle <= 0 {
		cfg.BlocksPerCycle = 1
	}
	if cfg.BaseDecimals < 0 || cfg.BaseDecimals > 18 {
		return nil, fmt.Errorf("base decimals %d out of range", cfg.BaseDecimals)
	}

	s := &Steward{
		logger:         logger.GetForComponent("steward"),
		cellar:         cfg.Cellar,
		env:            cfg.Env,
		blocksPerCycle: cfg.BlocksPerCycle,
		baseDecimals:   cfg.BaseDecimals,
	}

	s.logger.Info().
		Int64("blocksPerCycle", s.blocksPerCycle).
		Msg("Steward instance created")

	return s, nil
}

// RunLoop starts the main steward loop with the specified interval
func (s *Steward) RunLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info().
		Dur("interval", interval).
		Msg("Starting steward main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	s.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Steward loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle executes one observation cycle: value the vault, persist a
// snapshot, advance the block clock.
func (s *Steward) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	cycleID := uuid.New().String()
	cycleLogger := s.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting steward cycle ---")

	cycleNumber, err := state.IncrementCycleNumber()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to increment cycle counter")
		return
	}

	totalAssets, err := s.cellar.TotalAssets()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to value vault")
		return
	}

	sharePrice, err := s.cellar.SharePrice()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to compute share price")
		return
	}
	sharePriceFloat, err := utils.LegacyDecToFloat64(sharePrice)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to convert share price")
		return
	}

	positions, err := s.cellar.PositionValues()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to value positions")
		return
	}

	snapshot := types.VaultSnapshot{
		CycleNumber: cycleNumber,
		Timestamp:   cycleStartTime,
		TotalAssets: totalAssets.String(),
		TotalShares: s.cellar.TotalShares().String(),
		SharePrice:  sharePriceFloat,
		Positions:   positions,
	}

	totalAssetsDisplay, err := utils.SDKIntToFloat64(totalAssets, s.baseDecimals)
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to convert total assets for display")
		totalAssetsDisplay = 0
	}

	snapshotID, err := state.SaveVaultSnapshot(snapshot)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to persist vault snapshot")
	} else {
		cycleLogger.Info().
			Int64("snapshot_id", snapshotID).
			Int("cycle", cycleNumber).
			Str("totalAssets", totalAssets.String()).
			Float64("totalAssetsDisplay", totalAssetsDisplay).
			Float64("sharePrice", sharePriceFloat).
			Msg("Vault snapshot persisted")
	}

	s.env.AdvanceBlocks(s.blocksPerCycle)

	cycleLogger.Info().
		Int64("blockHeight", s.env.BlockHeight()).
		Dur("duration", time.Since(cycleStartTime)).
		Msg("--- Steward cycle completed ---")
}
