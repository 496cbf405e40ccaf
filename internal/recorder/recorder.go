// Package recorder persists the audit trail of processed events: Event rows
// keyed by the chain event id and Activity rows attributing participation to
// accounts. The duplicate-event guard lives here because every processor must
// run it before any mutation.
package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pabloScope/internal/model"
	"pabloScope/internal/storage"
)

// ErrDuplicateEvent signals that an Event row already exists for the incoming
// event id. That means upstream re-delivery; processing must halt rather than
// double-apply.
var ErrDuplicateEvent = errors.New("unexpected event already in store")

// EnsureNew verifies no Event row exists yet for the event id. It is
// read-only, so handlers run it before loading any state: a re-delivered
// event must fail without side effects.
func EnsureNew(ctx context.Context, store storage.Store, eventID string) error {
	existing, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event %s: %w", eventID, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, eventID)
	}
	return nil
}

// SaveEvent records the chain event after verifying its id has not been seen.
func SaveEvent(ctx context.Context, store storage.Store, blk model.Block, eventType model.EventType, accountID string) (*model.Event, error) {
	if err := EnsureNew(ctx, store, blk.EventID); err != nil {
		return nil, err
	}

	event := &model.Event{
		ID:          blk.EventID,
		AccountID:   accountID,
		EventType:   eventType,
		BlockNumber: blk.Number,
		Timestamp:   blk.Timestamp,
	}
	if err := store.SaveEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("save event %s: %w", blk.EventID, err)
	}
	return event, nil
}

// SaveActivity records that accountID took part in the event.
func SaveActivity(ctx context.Context, store storage.Store, event *model.Event, accountID string) error {
	activity := &model.Activity{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		AccountID: accountID,
		Timestamp: event.Timestamp,
	}
	if err := store.SaveActivity(ctx, activity); err != nil {
		return fmt.Errorf("save activity for %s: %w", event.ID, err)
	}
	return nil
}
