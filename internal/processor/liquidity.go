package processor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pabloScope/internal/adapter"
	"pabloScope/internal/ledger"
	"pabloScope/internal/model"
	"pabloScope/internal/recorder"
	"pabloScope/internal/storage"
)

// double returns 2x without touching x. Pool-level liquidity is tracked in
// quote-asset terms, and a deposit is approximated as twice its quote leg.
// The approximation assumes balanced deposits; it is kept as-is because
// downstream consumers depend on the existing figure.
func double(x *big.Int) *big.Int {
	return new(big.Int).Lsh(x, 1)
}

// ProcessLiquidityAdded credits the contributed amounts to the pool and its
// asset rows and mints the reported LP amount onto the running issuance.
func (p *Processor) ProcessLiquidityAdded(ctx context.Context, blk model.Block, payload *adapter.LiquidityChanged) error {
	p.logger.Debug("processing LiquidityAdded", zap.String("event_id", blk.EventID), zap.Uint64("pool_id", payload.PoolID))
	return p.applyLiquidityChange(ctx, blk, payload, false)
}

// ProcessLiquidityRemoved mirrors ProcessLiquidityAdded with negated deltas.
// LP issuance is overwritten with the chain-reported total supply when the
// event carries one; the chain is authoritative for issuance.
func (p *Processor) ProcessLiquidityRemoved(ctx context.Context, blk model.Block, payload *adapter.LiquidityChanged) error {
	p.logger.Debug("processing LiquidityRemoved", zap.String("event_id", blk.EventID), zap.Uint64("pool_id", payload.PoolID))
	return p.applyLiquidityChange(ctx, blk, payload, true)
}

func (p *Processor) applyLiquidityChange(ctx context.Context, blk model.Block, payload *adapter.LiquidityChanged, removal bool) error {
	who := adapter.EncodeAccount(payload.Who)

	eventType := model.EventTypeAddLiquidity
	if removal {
		eventType = model.EventTypeRemoveLiquidity
	}

	if err := recorder.EnsureNew(ctx, p.store, blk.EventID); err != nil {
		return err
	}

	prev, err := p.latestPool(ctx, payload.PoolID)
	if err != nil {
		return err
	}

	pool := prev.NextSnapshot(blk.EventID, blk.Number, blk.Timestamp)
	pool.TransactionCount++

	if removal {
		if payload.TotalIssuance != nil {
			pool.LpIssued = new(big.Int).Set(payload.TotalIssuance)
		}
	} else {
		pool.LpIssued.Add(pool.LpIssued, payload.MintedLp)
	}

	changes := make([]model.LiquidityChange, 0, len(payload.Amounts))
	for _, aa := range payload.Amounts {
		asset := pool.Asset(aa.AssetID)
		if asset == nil {
			return fmt.Errorf("%w: asset %d in pool %d", ErrAssetNotFound, aa.AssetID, payload.PoolID)
		}

		delta := new(big.Int).Set(aa.Amount)
		if removal {
			delta.Neg(delta)
		}

		asset.TotalLiquidity.Add(asset.TotalLiquidity, delta)

		if aa.AssetID == pool.QuoteAssetID {
			pool.TotalLiquidity.Add(pool.TotalLiquidity, double(delta))
		}

		changes = append(changes, model.LiquidityChange{AssetID: aa.AssetID, Amount: delta})
	}

	tx := &model.PabloTransaction{
		ID:               uuid.NewString(),
		EventID:          blk.EventID,
		PoolID:           payload.PoolID,
		TxType:           eventType,
		LiquidityChanges: changes,
	}

	return p.store.WithTx(ctx, func(s storage.Store) error {
		event, err := recorder.SaveEvent(ctx, s, blk, eventType, who)
		if err != nil {
			return err
		}
		if err := recorder.SaveActivity(ctx, s, event, who); err != nil {
			return err
		}
		if err := s.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("save transaction for %s: %w", blk.EventID, err)
		}
		if err := savePoolSnapshot(ctx, s, pool); err != nil {
			return err
		}
		for _, change := range changes {
			if err := ledger.ApplyLockedValueDelta(ctx, s, change.AssetID, change.Amount, p.source, blk.Timestamp); err != nil {
				return err
			}
		}
		return nil
	})
}
