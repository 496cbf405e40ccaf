package processor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pabloScope/internal/adapter"
	"pabloScope/internal/model"
	"pabloScope/internal/recorder"
	"pabloScope/internal/storage"
)

// ProcessPoolCreated materializes a new pool with zeroed totals and one asset
// row per configured asset. Creation is privileged, so no Activity is
// recorded for the owner.
func (p *Processor) ProcessPoolCreated(ctx context.Context, blk model.Block, payload *adapter.PoolCreated) error {
	p.logger.Debug("processing PoolCreated", zap.String("event_id", blk.EventID), zap.Uint64("pool_id", payload.PoolID))

	owner := adapter.EncodeAccount(payload.Owner)

	if err := recorder.EnsureNew(ctx, p.store, blk.EventID); err != nil {
		return err
	}

	existing, err := p.store.GetLatestPoolByPoolID(ctx, payload.PoolID)
	if err != nil {
		return fmt.Errorf("get latest pool %d: %w", payload.PoolID, err)
	}
	if existing != nil {
		return fmt.Errorf("pool %d already exists (snapshot %s)", payload.PoolID, existing.ID)
	}

	pool := &model.Pool{
		ID:               blk.EventID,
		PoolID:           payload.PoolID,
		Owner:            owner,
		PoolType:         model.PoolTypeDualAssetConstantProduct,
		QuoteAssetID:     payload.QuoteAssetID,
		LpIssued:         big.NewInt(0),
		TransactionCount: 1,
		TotalLiquidity:   big.NewInt(0),
		TotalVolume:      big.NewInt(0),
		TotalFees:        big.NewInt(0),
		BlockNumber:      blk.Number,
		Timestamp:        blk.Timestamp,
	}

	for _, aw := range payload.Assets {
		pool.Assets = append(pool.Assets, &model.PoolAsset{
			ID:             model.PoolAssetID(blk.EventID, aw.AssetID),
			PoolEventID:    blk.EventID,
			PoolID:         payload.PoolID,
			AssetID:        aw.AssetID,
			Weight:         aw.Weight,
			TotalLiquidity: big.NewInt(0),
			TotalVolume:    big.NewInt(0),
			BlockNumber:    blk.Number,
			Timestamp:      blk.Timestamp,
		})
	}

	tx := &model.PabloTransaction{
		ID:      uuid.NewString(),
		EventID: blk.EventID,
		PoolID:  payload.PoolID,
		TxType:  model.EventTypeCreatePool,
	}

	return p.store.WithTx(ctx, func(s storage.Store) error {
		if _, err := recorder.SaveEvent(ctx, s, blk, model.EventTypeCreatePool, owner); err != nil {
			return err
		}
		if err := s.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("save transaction for %s: %w", blk.EventID, err)
		}
		return savePoolSnapshot(ctx, s, pool)
	})
}

// ProcessPoolDeleted drains the refunded amounts out of the pool. The pool
// row survives with its history; liquidity is driven toward zero rather than
// the snapshot being removed.
func (p *Processor) ProcessPoolDeleted(ctx context.Context, blk model.Block, payload *adapter.PoolDeleted) error {
	p.logger.Debug("processing PoolDeleted", zap.String("event_id", blk.EventID), zap.Uint64("pool_id", payload.PoolID))

	who := adapter.EncodeAccount(payload.Who)

	if err := recorder.EnsureNew(ctx, p.store, blk.EventID); err != nil {
		return err
	}

	prev, err := p.latestPool(ctx, payload.PoolID)
	if err != nil {
		return err
	}

	pool := prev.NextSnapshot(blk.EventID, blk.Number, blk.Timestamp)
	pool.TransactionCount++

	changes := make([]model.LiquidityChange, 0, len(payload.Amounts))
	for _, aa := range payload.Amounts {
		asset := pool.Asset(aa.AssetID)
		if asset == nil {
			return fmt.Errorf("%w: asset %d in pool %d", ErrAssetNotFound, aa.AssetID, payload.PoolID)
		}
		asset.TotalLiquidity.Sub(asset.TotalLiquidity, aa.Amount)

		if aa.AssetID == pool.QuoteAssetID {
			// Same quote-denominated double convention as the liquidity
			// handlers, so the running total lands near zero.
			pool.TotalLiquidity.Sub(pool.TotalLiquidity, double(aa.Amount))
		}

		changes = append(changes, model.LiquidityChange{
			AssetID: aa.AssetID,
			Amount:  new(big.Int).Neg(aa.Amount),
		})
	}

	tx := &model.PabloTransaction{
		ID:               uuid.NewString(),
		EventID:          blk.EventID,
		PoolID:           payload.PoolID,
		TxType:           model.EventTypeDeletePool,
		LiquidityChanges: changes,
	}

	return p.store.WithTx(ctx, func(s storage.Store) error {
		if _, err := recorder.SaveEvent(ctx, s, blk, model.EventTypeDeletePool, who); err != nil {
			return err
		}
		if err := s.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("save transaction for %s: %w", blk.EventID, err)
		}
		return savePoolSnapshot(ctx, s, pool)
	})
}
