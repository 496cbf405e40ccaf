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
	"pabloScope/internal/pricing"
	"pabloScope/internal/recorder"
	"pabloScope/internal/storage"
)

// ProcessSwapped moves the sold asset out of the pool (fees included), the
// bought asset in, and accumulates volume and fees in quote-asset terms.
//
// A swap is "reverse" when the event's declared quote asset is not the pool's
// recorded one; the spot price and the pool-level volume metric then come
// from the opposite side of the event.
func (p *Processor) ProcessSwapped(ctx context.Context, blk model.Block, payload *adapter.Swapped) error {
	p.logger.Debug("processing Swapped", zap.String("event_id", blk.EventID), zap.Uint64("pool_id", payload.PoolID))

	who := adapter.EncodeAccount(payload.Who)

	if err := recorder.EnsureNew(ctx, p.store, blk.EventID); err != nil {
		return err
	}

	prev, err := p.latestPool(ctx, payload.PoolID)
	if err != nil {
		return err
	}

	if prev.PoolType != model.PoolTypeDualAssetConstantProduct {
		return fmt.Errorf("%w: %s (pool %d)", ErrUnsupportedPoolType, prev.PoolType, payload.PoolID)
	}

	isReverse := payload.QuoteAssetID != prev.QuoteAssetID

	// Pool-quote-side amounts, regardless of how the event labels its sides.
	poolQuoteAmount := payload.QuoteAmount
	poolBaseAmount := payload.BaseAmount
	poolQuoteAssetID := payload.QuoteAssetID
	if isReverse {
		poolQuoteAmount = payload.BaseAmount
		poolBaseAmount = payload.QuoteAmount
		poolQuoteAssetID = payload.BaseAssetID
	}

	spot, err := pricing.SpotPrice(poolQuoteAmount, poolBaseAmount)
	if err != nil {
		return fmt.Errorf("swap %s: %w", blk.EventID, err)
	}

	feesLeavingPool := new(big.Int).Sub(payload.Fee.Fee, payload.Fee.LpFee)
	quoteFee := pricing.FeeInQuote(spot, prev.QuoteAssetID, payload.Fee.AssetID, payload.Fee.Fee)
	quoteFeeLeaving := pricing.FeeInQuote(spot, prev.QuoteAssetID, payload.Fee.AssetID, feesLeavingPool)

	pool := prev.NextSnapshot(blk.EventID, blk.Number, blk.Timestamp)
	pool.TransactionCount++
	pool.TotalVolume.Add(pool.TotalVolume, poolQuoteAmount)
	pool.TotalLiquidity.Sub(pool.TotalLiquidity, quoteFeeLeaving)
	pool.TotalFees.Add(pool.TotalFees, quoteFee)

	baseAsset := pool.Asset(payload.BaseAssetID)
	if baseAsset == nil {
		return fmt.Errorf("%w: base asset %d in pool %d", ErrAssetNotFound, payload.BaseAssetID, payload.PoolID)
	}
	quoteAsset := pool.Asset(payload.QuoteAssetID)
	if quoteAsset == nil {
		return fmt.Errorf("%w: quote asset %d in pool %d", ErrAssetNotFound, payload.QuoteAssetID, payload.PoolID)
	}

	// The event's base side leaves the pool, fees leaving with it; the quote
	// side comes in.
	baseAsset.TotalVolume.Add(baseAsset.TotalVolume, payload.BaseAmount)
	baseAsset.TotalLiquidity.Sub(baseAsset.TotalLiquidity, payload.BaseAmount)
	baseAsset.TotalLiquidity.Sub(baseAsset.TotalLiquidity, feesLeavingPool)

	quoteAsset.TotalVolume.Add(quoteAsset.TotalVolume, payload.QuoteAmount)
	quoteAsset.TotalLiquidity.Add(quoteAsset.TotalLiquidity, payload.QuoteAmount)

	tx := &model.PabloTransaction{
		ID:               uuid.NewString(),
		EventID:          blk.EventID,
		PoolID:           payload.PoolID,
		TxType:           model.EventTypeSwap,
		SpotPrice:        pricing.FormatSpotPrice(spot),
		BaseAssetID:      payload.BaseAssetID,
		BaseAssetAmount:  new(big.Int).Set(payload.BaseAmount),
		QuoteAssetID:     payload.QuoteAssetID,
		QuoteAssetAmount: new(big.Int).Set(payload.QuoteAmount),
		Fee:              quoteFee,
	}

	return p.store.WithTx(ctx, func(s storage.Store) error {
		event, err := recorder.SaveEvent(ctx, s, blk, model.EventTypeSwap, who)
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
		return ledger.ApplyVolumeDelta(ctx, s, poolQuoteAssetID, poolQuoteAmount, p.source, blk.Timestamp)
	})
}
