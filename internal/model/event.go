package model

import "time"

// Block carries the chain position of the event being processed. EventID is
// the chain's globally unique event identifier and doubles as the idempotency
// key for the whole transition.
type Block struct {
	EventID   string    `json:"event_id"`
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is the immutable record of one observed chain event. The primary key
// is the chain event id; a duplicate insert signals upstream re-delivery.
type Event struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	EventType   EventType `json:"event_type"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
}

// Activity records that an account took part in an event. Pool creation is
// excluded: creation is privileged and would skew engagement metrics.
type Activity struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	AccountID string    `json:"account_id"`
	Timestamp time.Time `json:"timestamp"`
}
