package model

import "math/big"

// LiquidityChange is one asset's signed delta inside a transaction record.
type LiquidityChange struct {
	AssetID uint64   `json:"asset_id"`
	Amount  *big.Int `json:"amount"`
}

// PabloTransaction is the denormalized, analytics-facing projection of one
// event's economic effect. Append-only; swap fields stay zero for liquidity
// transactions and vice versa.
type PabloTransaction struct {
	ID               string            `json:"id"`
	EventID          string            `json:"event_id"`
	PoolID           uint64            `json:"pool_id"`
	TxType           EventType         `json:"tx_type"`
	SpotPrice        string            `json:"spot_price,omitempty"`
	BaseAssetID      uint64            `json:"base_asset_id,omitempty"`
	BaseAssetAmount  *big.Int          `json:"base_asset_amount,omitempty"`
	QuoteAssetID     uint64            `json:"quote_asset_id,omitempty"`
	QuoteAssetAmount *big.Int          `json:"quote_asset_amount,omitempty"`
	Fee              *big.Int          `json:"fee,omitempty"`
	LiquidityChanges []LiquidityChange `json:"liquidity_changes,omitempty"`
}
