// Package ledger maintains the locked-value and trading-volume series. Every
// delta lands twice: once on the unbucketed running total and once on the day
// bucket containing the block timestamp. Deltas are additive, so replaying a
// set in any order converges on the same totals.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"pabloScope/internal/model"
	"pabloScope/internal/storage"
)

const bucketSeconds = 86_400

// Bucket returns the day boundary containing ts.
func Bucket(ts time.Time) time.Time {
	unix := ts.Unix()
	return time.Unix(unix-unix%bucketSeconds, 0).UTC()
}

// ApplyLockedValueDelta adds a signed amount to the locked-value series for
// one asset and source.
func ApplyLockedValueDelta(ctx context.Context, store storage.Store, assetID uint64, delta *big.Int, source model.LockedSource, ts time.Time) error {
	current, err := store.GetCurrentLockedValue(ctx, assetID, source)
	if err != nil {
		return fmt.Errorf("get current locked value %d/%s: %w", assetID, source, err)
	}
	if current == nil {
		current = &model.CurrentLockedValue{
			ID:      model.CurrentLockedValueID(assetID, source),
			AssetID: assetID,
			Source:  source,
			Amount:  big.NewInt(0),
		}
	}
	current.Amount = new(big.Int).Add(current.Amount, delta)
	if err := store.SaveCurrentLockedValue(ctx, current); err != nil {
		return fmt.Errorf("save current locked value %d/%s: %w", assetID, source, err)
	}

	bucket := Bucket(ts)
	historical, err := store.GetHistoricalLockedValue(ctx, assetID, source, bucket)
	if err != nil {
		return fmt.Errorf("get historical locked value %d/%s: %w", assetID, source, err)
	}
	if historical == nil {
		historical = &model.HistoricalLockedValue{
			ID:      model.BucketID(assetID, source, bucket),
			AssetID: assetID,
			Source:  source,
			Bucket:  bucket,
			Amount:  big.NewInt(0),
		}
	}
	historical.Amount = new(big.Int).Add(historical.Amount, delta)
	if err := store.SaveHistoricalLockedValue(ctx, historical); err != nil {
		return fmt.Errorf("save historical locked value %d/%s: %w", assetID, source, err)
	}

	return nil
}

// ApplyVolumeDelta adds a traded amount to the volume series for one asset
// and source.
func ApplyVolumeDelta(ctx context.Context, store storage.Store, assetID uint64, delta *big.Int, source model.LockedSource, ts time.Time) error {
	bucket := Bucket(ts)
	volume, err := store.GetHistoricalVolume(ctx, assetID, source, bucket)
	if err != nil {
		return fmt.Errorf("get historical volume %d/%s: %w", assetID, source, err)
	}
	if volume == nil {
		volume = &model.HistoricalVolume{
			ID:      model.BucketID(assetID, source, bucket),
			AssetID: assetID,
			Source:  source,
			Bucket:  bucket,
			Amount:  big.NewInt(0),
		}
	}
	volume.Amount = new(big.Int).Add(volume.Amount, delta)
	if err := store.SaveHistoricalVolume(ctx, volume); err != nil {
		return fmt.Errorf("save historical volume %d/%s: %w", assetID, source, err)
	}
	return nil
}
