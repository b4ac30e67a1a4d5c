/*

This file contains the types for positions which carry all the state needed
for vault accounting and strategist dispatch.

*/

package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// PositionID is a dense, registry-issued identifier. The id is permanent:
// once trusted, it is bound to one (adaptor, config) pair forever.
type PositionID uint32

// Position is the registry record for one deployable exposure.
type Position struct {
	ID        PositionID `json:"id"`
	AdaptorID string     `json:"adaptor_id"`
	Config    []byte     `json:"config"`
	IsDebt    bool       `json:"is_debt"`
	IsTrusted bool       `json:"is_trusted"`
}

// Matches reports whether the record is bound to the given pair.
func (p Position) Matches(adaptorID string, config []byte) bool {
	return p.AdaptorID == adaptorID && bytes.Equal(p.Config, config)
}

// CellarPosition is a vault-local reference to a registry position, in the
// order the cellar traverses for valuation and liquidity draw-down.
type CellarPosition struct {
	ID     PositionID `json:"id"`
	Config []byte     `json:"config"`
	IsDebt bool       `json:"is_debt"`
}

// StrategistCall is one adaptor-specific function invocation. The cellar does
// not interpret Args; only the target adaptor does.
type StrategistCall struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// AdaptorCall pairs a target adaptor with an ordered list of calls. A batch
// of AdaptorCalls is submitted atomically by the strategist.
type AdaptorCall struct {
	AdaptorID string           `json:"adaptor_id"`
	Calls     []StrategistCall `json:"calls"`
}

// PositionValue is a valuation row for reporting: one position's balance in
// its native asset and its converted value in the cellar's base asset.
type PositionValue struct {
	ID        PositionID `json:"id"`
	AdaptorID string     `json:"adaptor_id"`
	Denom     string     `json:"denom"`
	Balance   string     `json:"balance"`
	BaseValue string     `json:"base_value"`
	IsDebt    bool       `json:"is_debt"`
}

// RebalanceReceipt records the outcome of one strategist batch.
type RebalanceReceipt struct {
	ReceiptID    int64     `json:"receipt_id,omitempty"` // Auto-incremented by DB
	BatchID      string    `json:"batch_id"`
	Timestamp    time.Time `json:"timestamp"`
	PreValue     string    `json:"pre_value"`
	PostValue    string    `json:"post_value"`
	DeviationPct float64   `json:"deviation_pct"`
	CallCount    int       `json:"call_count"`
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`
}

// VaultSnapshot is a periodic record of vault value and share supply.
type VaultSnapshot struct {
	SnapshotID  int64           `json:"snapshot_id,omitempty"`
	CycleNumber int             `json:"cycle_number"`
	Timestamp   time.Time       `json:"timestamp"`
	TotalAssets string          `json:"total_assets"`
	TotalShares string          `json:"total_shares"`
	SharePrice  float64         `json:"share_price"`
	Positions   []PositionValue `json:"positions,omitempty"`
}
