package model

import (
	"fmt"
	"math/big"
	"time"
)

// CurrentLockedValue is the running locked total for one asset and source,
// without time bucketing.
type CurrentLockedValue struct {
	ID      string       `json:"id"`
	AssetID uint64       `json:"asset_id"`
	Source  LockedSource `json:"source"`
	Amount  *big.Int     `json:"amount"`
}

// HistoricalLockedValue is one time bucket of the locked-value series.
type HistoricalLockedValue struct {
	ID      string       `json:"id"`
	AssetID uint64       `json:"asset_id"`
	Source  LockedSource `json:"source"`
	Bucket  time.Time    `json:"bucket"`
	Amount  *big.Int     `json:"amount"`
}

// HistoricalVolume is one time bucket of the trading-volume series.
type HistoricalVolume struct {
	ID      string       `json:"id"`
	AssetID uint64       `json:"asset_id"`
	Source  LockedSource `json:"source"`
	Bucket  time.Time    `json:"bucket"`
	Amount  *big.Int     `json:"amount"`
}

// CurrentLockedValueID keys the running total by asset and source.
func CurrentLockedValueID(assetID uint64, source LockedSource) string {
	return fmt.Sprintf("%d-%s", assetID, source)
}

// BucketID keys a historical row by asset, source and bucket start.
func BucketID(assetID uint64, source LockedSource, bucket time.Time) string {
	return fmt.Sprintf("%d-%s-%d", assetID, source, bucket.Unix())
}
