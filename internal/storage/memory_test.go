package storage

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pabloScope/internal/model"
)

func TestMemorySaveEventRejectsDuplicate(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	event := &model.Event{ID: "ev-1", EventType: model.EventTypeSwap, Timestamp: time.Unix(1668520000, 0).UTC()}
	require.NoError(t, store.SaveEvent(ctx, event))
	assert.Error(t, store.SaveEvent(ctx, event))
}

func TestMemoryWithTxRollsBack(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	current := &model.CurrentLockedValue{
		ID:      model.CurrentLockedValueID(1, model.LockedSourcePablo),
		AssetID: 1,
		Source:  model.LockedSourcePablo,
		Amount:  big.NewInt(100),
	}
	require.NoError(t, store.SaveCurrentLockedValue(ctx, current))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s Store) error {
		if err := s.SaveEvent(ctx, &model.Event{ID: "ev-1", EventType: model.EventTypeSwap}); err != nil {
			return err
		}
		value, err := s.GetCurrentLockedValue(ctx, 1, model.LockedSourcePablo)
		if err != nil {
			return err
		}
		value.Amount = new(big.Int).Add(value.Amount, big.NewInt(50))
		if err := s.SaveCurrentLockedValue(ctx, value); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Everything written inside the failed scope is gone.
	event, err := store.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	assert.Nil(t, event)

	value, err := store.GetCurrentLockedValue(ctx, 1, model.LockedSourcePablo)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, int64(100), value.Amount.Int64())
}

func TestMemoryWithTxCommits(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	err := store.WithTx(ctx, func(s Store) error {
		return s.SaveEvent(ctx, &model.Event{ID: "ev-1", EventType: model.EventTypeSwap})
	})
	require.NoError(t, err)

	event, err := store.GetEvent(ctx, "ev-1")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, model.EventTypeSwap, event.EventType)
}
