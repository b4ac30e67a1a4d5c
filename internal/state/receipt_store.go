// ./internal/state/receipt_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultworks/cellar/internal/types"
)

// SaveRebalanceReceipt persists the outcome of one strategist batch.
func SaveRebalanceReceipt(receipt types.RebalanceReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO rebalance_receipts (
			batch_id, receipt_timestamp, pre_value, post_value,
			deviation_pct, call_count, success, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING receipt_id;
	`

	var receiptID int64
	err := DB.QueryRow(
		query,
		receipt.BatchID, receipt.Timestamp, receipt.PreValue, receipt.PostValue,
		receipt.DeviationPct, receipt.CallCount, receipt.Success, receipt.Message,
	).Scan(&receiptID)

	if err != nil {
		return 0, fmt.Errorf("failed to save rebalance receipt: %w", err)
	}

	log.Info().
		Int64("receipt_id", receiptID).
		Str("batch_id", receipt.BatchID).
		Bool("success", receipt.Success).
		Msg("Rebalance receipt saved to database")

	return receiptID, nil
}

// GetRecentReceipts returns the latest rebalance receipts, newest first.
func GetRecentReceipts(limit int) ([]types.RebalanceReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT receipt_id, batch_id, receipt_timestamp, pre_value, post_value,
		       deviation_pct, call_count, success, COALESCE(message, '')
		FROM rebalance_receipts
		ORDER BY receipt_timestamp DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance receipts: %w", err)
	}
	defer rows.Close()

	var out []types.RebalanceReceipt
	for rows.Next() {
		var r types.RebalanceReceipt
		if err := rows.Scan(
			&r.ReceiptID, &r.BatchID, &r.Timestamp, &r.PreValue, &r.PostValue,
			&r.DeviationPct, &r.CallCount, &r.Success, &r.Message,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rebalance receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebalance receipts: %w", err)
	}
	return out, nil
}
