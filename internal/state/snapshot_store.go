// ./internal/state/snapshot_store.go
package state

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultworks/cellar/internal/types"
)

// SaveVaultSnapshot saves a complete vault snapshot to the database.
func SaveVaultSnapshot(snapshot types.VaultSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	positionsJSON, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal positions: %w", err)
	}

	query := `
		INSERT INTO vault_snapshots (
			cycle_number, snapshot_timestamp, total_assets, total_shares,
			share_price, positions
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.Timestamp, snapshot.TotalAssets,
		snapshot.TotalShares, snapshot.SharePrice, positionsJSON,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save vault snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("total_assets", snapshot.TotalAssets).
		Msg("Vault snapshot saved to database")

	return snapshotID, nil
}

// GetRecentSnapshots returns the latest vault snapshots, newest first.
func GetRecentSnapshots(limit int) ([]types.VaultSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT snapshot_id, cycle_number, snapshot_timestamp, total_assets,
		       total_shares, share_price, positions
		FROM vault_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault snapshots: %w", err)
	}
	defer rows.Close()

	var out []types.VaultSnapshot
	for rows.Next() {
		var s types.VaultSnapshot
		var positionsJSON []byte
		if err := rows.Scan(
			&s.SnapshotID, &s.CycleNumber, &s.Timestamp, &s.TotalAssets,
			&s.TotalShares, &s.SharePrice, &positionsJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vault snapshot: %w", err)
		}
		if len(positionsJSON) > 0 {
			if err := json.Unmarshal(positionsJSON, &s.Positions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
			}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vault snapshots: %w", err)
	}
	return out, nil
}
