// Package history keeps an append-only journal of everything that happens to a
// book: additions, edits, borrowings, releases and removals.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
)

const AggregateBook = "book"

const (
	EventBookAdded    = "BookAdded"
	EventBookUpdated  = "BookUpdated"
	EventBookBorrowed = "BookBorrowed"
	EventBookReleased = "BookReleased"
	EventBookRemoved  = "BookRemoved"
)

// Event is one journal entry. Version is assigned on append and is
// contiguous per aggregate.
type Event struct {
	ID            int64               `json:"id" db:"id"`
	AggregateID   uuid.UUID           `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string              `json:"aggregate_type" db:"aggregate_type"`
	EventType     string              `json:"event_type" db:"event_type"`
	EventData     jsoniter.RawMessage `json:"event_data" db:"event_data"`
	Version       int                 `json:"version" db:"version"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`
}

type BookAdded struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

type BookUpdated struct {
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	ImageURL *string `json:"image_url,omitempty"`
}

type BookBorrowed struct {
	RecordID   uuid.UUID `json:"record_id"`
	UserID     uuid.UUID `json:"user_id"`
	ReceiptNo  string    `json:"receipt_no"`
	PickupDate string    `json:"pickup_date"`
}

type BookReleased struct {
	RecordID uuid.UUID `json:"record_id"`
}

type BookRemoved struct {
	Title string `json:"title"`
}

// NewBookEvent builds a book event with its payload encoded as JSON.
func NewBookEvent(bookID uuid.UUID, eventType string, payload any, at time.Time) (Event, error) {
	data, err := jsoniter.ConfigFastest.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateID:   bookID,
		AggregateType: AggregateBook,
		EventType:     eventType,
		EventData:     data,
		CreatedAt:     at.UTC(),
	}, nil
}
