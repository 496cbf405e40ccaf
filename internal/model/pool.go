package model

import (
	"fmt"
	"math/big"
	"time"
)

// Pool is one liquidity pool snapshot. A new row is written for every
// state-changing event (primary key is the event id), so the full history of
// each pool is preserved; GetLatestPoolByPoolID resolves the live state.
type Pool struct {
	ID               string    `json:"id"`
	PoolID           uint64    `json:"pool_id"`
	Owner            string    `json:"owner"`
	PoolType         PoolType  `json:"pool_type"`
	QuoteAssetID     uint64    `json:"quote_asset_id"`
	LpIssued         *big.Int  `json:"lp_issued"`
	TransactionCount uint64    `json:"transaction_count"`
	TotalLiquidity   *big.Int  `json:"total_liquidity"`
	TotalVolume      *big.Int  `json:"total_volume"`
	TotalFees        *big.Int  `json:"total_fees"`
	BlockNumber      uint64    `json:"block_number"`
	Timestamp        time.Time `json:"timestamp"`

	Assets []*PoolAsset `json:"assets"`
}

// PoolAsset is one asset's bookkeeping inside a pool snapshot. The asset set
// is fixed at PoolCreated; only the running totals move.
type PoolAsset struct {
	ID             string    `json:"id"`
	PoolEventID    string    `json:"pool_event_id"`
	PoolID         uint64    `json:"pool_id"`
	AssetID        uint64    `json:"asset_id"`
	Weight         uint64    `json:"weight"`
	TotalLiquidity *big.Int  `json:"total_liquidity"`
	TotalVolume    *big.Int  `json:"total_volume"`
	BlockNumber    uint64    `json:"block_number"`
	Timestamp      time.Time `json:"timestamp"`
}

// PoolAssetID builds the snapshot-scoped primary key for a pool asset row.
func PoolAssetID(eventID string, assetID uint64) string {
	return fmt.Sprintf("%s-%d", eventID, assetID)
}

// Asset returns the snapshot's row for assetID, or nil when the pool does not
// hold that asset.
func (p *Pool) Asset(assetID uint64) *PoolAsset {
	for _, asset := range p.Assets {
		if asset.AssetID == assetID {
			return asset
		}
	}
	return nil
}

// BaseAsset returns the row that is not the recorded quote asset. With the
// current dual-asset pools exactly one such row exists.
func (p *Pool) BaseAsset() *PoolAsset {
	for _, asset := range p.Assets {
		if asset.AssetID != p.QuoteAssetID {
			return asset
		}
	}
	return nil
}

// NextSnapshot copies the pool and its asset rows into a fresh snapshot keyed
// by eventID, carrying all running totals forward.
func (p *Pool) NextSnapshot(eventID string, blockNumber uint64, timestamp time.Time) *Pool {
	next := &Pool{
		ID:               eventID,
		PoolID:           p.PoolID,
		Owner:            p.Owner,
		PoolType:         p.PoolType,
		QuoteAssetID:     p.QuoteAssetID,
		LpIssued:         new(big.Int).Set(p.LpIssued),
		TransactionCount: p.TransactionCount,
		TotalLiquidity:   new(big.Int).Set(p.TotalLiquidity),
		TotalVolume:      new(big.Int).Set(p.TotalVolume),
		TotalFees:        new(big.Int).Set(p.TotalFees),
		BlockNumber:      blockNumber,
		Timestamp:        timestamp,
	}

	next.Assets = make([]*PoolAsset, 0, len(p.Assets))
	for _, asset := range p.Assets {
		next.Assets = append(next.Assets, &PoolAsset{
			ID:             PoolAssetID(eventID, asset.AssetID),
			PoolEventID:    eventID,
			PoolID:         asset.PoolID,
			AssetID:        asset.AssetID,
			Weight:         asset.Weight,
			TotalLiquidity: new(big.Int).Set(asset.TotalLiquidity),
			TotalVolume:    new(big.Int).Set(asset.TotalVolume),
			BlockNumber:    blockNumber,
			Timestamp:      timestamp,
		})
	}

	return next
}
