// Package storage defines the entity store consumed by the processing core.
// The store is the single source of truth: handlers load fresh state, mutate
// in memory, and save, with no caching across event boundaries.
package storage

import (
	"context"
	"time"

	"pabloScope/internal/model"
)

// Store is a key-addressable entity store. Get methods return (nil, nil)
// when the entity does not exist; Save is insert-or-update by primary key,
// except SaveEvent, which fails on an existing id: the events table is
// append-only.
type Store interface {
	// WithTx runs fn against a store handle whose writes commit together
	// when fn returns nil and are discarded when it returns an error.
	// Handlers wrap each event's full write set in one call so a failure
	// mid-event leaves nothing behind and the event can be retried.
	WithTx(ctx context.Context, fn func(Store) error) error

	GetEvent(ctx context.Context, id string) (*model.Event, error)
	SaveEvent(ctx context.Context, event *model.Event) error
	SaveActivity(ctx context.Context, activity *model.Activity) error

	// GetLatestPoolByPoolID returns the pool snapshot with the highest
	// block number for the chain pool id, assets included.
	GetLatestPoolByPoolID(ctx context.Context, poolID uint64) (*model.Pool, error)
	// SavePoolSnapshot persists a pool row together with its asset rows.
	SavePoolSnapshot(ctx context.Context, pool *model.Pool) error

	SaveTransaction(ctx context.Context, tx *model.PabloTransaction) error

	GetCurrentLockedValue(ctx context.Context, assetID uint64, source model.LockedSource) (*model.CurrentLockedValue, error)
	SaveCurrentLockedValue(ctx context.Context, value *model.CurrentLockedValue) error
	GetHistoricalLockedValue(ctx context.Context, assetID uint64, source model.LockedSource, bucket time.Time) (*model.HistoricalLockedValue, error)
	SaveHistoricalLockedValue(ctx context.Context, value *model.HistoricalLockedValue) error
	GetHistoricalVolume(ctx context.Context, assetID uint64, source model.LockedSource, bucket time.Time) (*model.HistoricalVolume, error)
	SaveHistoricalVolume(ctx context.Context, value *model.HistoricalVolume) error
}
