// Package processor implements the event-to-aggregate state transitions. One
// handler per event kind; each loads the latest committed pool snapshot,
// applies the event's effect, and persists a fresh snapshot plus the audit
// rows. The full write set of an event commits atomically, so a fatal error
// leaves the store exactly at the last fully committed event and the failed
// event can be retried from the same feed position.
package processor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pabloScope/internal/adapter"
	"pabloScope/internal/model"
	"pabloScope/internal/storage"
)

var (
	// ErrPoolNotFound means an event references a pool id with no snapshot:
	// an out-of-order feed or a missing PoolCreated.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrAssetNotFound means an expected asset row is missing from the pool
	// snapshot. Continuing would corrupt the aggregates, so this is fatal.
	ErrAssetNotFound = errors.New("pool asset not found")

	// ErrUnsupportedPoolType guards the swap math, which assumes exactly two
	// assets in a constant-product pool.
	ErrUnsupportedPoolType = errors.New("unsupported pool type")
)

// Processor applies canonical event payloads against the store.
type Processor struct {
	store  storage.Store
	logger *zap.Logger
	source model.LockedSource
}

func New(store storage.Store, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:  store,
		logger: logger,
		source: model.LockedSourcePablo,
	}
}

// Dispatch routes a decoded event to its handler.
func (p *Processor) Dispatch(ctx context.Context, blk model.Block, dec adapter.Decoded) error {
	switch dec.Kind {
	case adapter.KindPoolCreated:
		return p.ProcessPoolCreated(ctx, blk, dec.PoolCreated)
	case adapter.KindLiquidityAdded:
		return p.ProcessLiquidityAdded(ctx, blk, dec.LiquidityAdded)
	case adapter.KindLiquidityRemoved:
		return p.ProcessLiquidityRemoved(ctx, blk, dec.LiquidityRemoved)
	case adapter.KindSwapped:
		return p.ProcessSwapped(ctx, blk, dec.Swapped)
	case adapter.KindPoolDeleted:
		return p.ProcessPoolDeleted(ctx, blk, dec.PoolDeleted)
	default:
		return fmt.Errorf("no handler for event kind %q", dec.Kind)
	}
}

// latestPool loads the freshest committed snapshot for a pool id, failing
// when none exists. Pool state is never cached across events.
func (p *Processor) latestPool(ctx context.Context, poolID uint64) (*model.Pool, error) {
	pool, err := p.store.GetLatestPoolByPoolID(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("get latest pool %d: %w", poolID, err)
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, poolID)
	}
	return pool, nil
}

func savePoolSnapshot(ctx context.Context, s storage.Store, pool *model.Pool) error {
	if err := s.SavePoolSnapshot(ctx, pool); err != nil {
		return fmt.Errorf("save pool snapshot %s: %w", pool.ID, err)
	}
	return nil
}
