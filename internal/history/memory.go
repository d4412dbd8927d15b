package history

import (
	"time"

	"github.com/google/uuid"
)

// Log is the in-process counterpart of Journal. It is not safe for concurrent
// use; the owning store serializes access.
type Log struct {
	streams map[uuid.UUID][]Event
	nextID  int64
}

func NewLog() *Log {
	return &Log{streams: make(map[uuid.UUID][]Event)}
}

// Append has the same version semantics as Journal.Append.
func (l *Log) Append(aggregateID uuid.UUID, expectedVersion int, events ...Event) (int, error) {
	stream := l.streams[aggregateID]
	current := len(stream)
	if expectedVersion != AnyVersion && current != expectedVersion {
		return current, ErrConcurrencyConflict
	}

	for i, event := range events {
		l.nextID++
		event.ID = l.nextID
		event.AggregateID = aggregateID
		event.Version = current + i + 1
		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now().UTC()
		}
		stream = append(stream, event)
	}
	l.streams[aggregateID] = stream
	return len(stream), nil
}

// Load returns a copy of the stream from fromVersion on.
func (l *Log) Load(aggregateID uuid.UUID, fromVersion int) []Event {
	stream := l.streams[aggregateID]
	out := make([]Event, 0, len(stream))
	for _, event := range stream {
		if event.Version >= fromVersion {
			out = append(out, event)
		}
	}
	return out
}
