package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campuslibrary/internal/store/pgerr"
)

// AnyVersion skips the optimistic version check on append.
const AnyVersion = -1

// Journal persists events in the book_events table. It never opens its own
// transaction; callers pass the transaction that carries the state change the
// events describe so both commit or roll back together.
type Journal struct {
	tracer trace.Tracer
}

func NewJournal() *Journal {
	return &Journal{tracer: otel.Tracer("campuslibrary/history")}
}

type eventRow struct {
	ID            int64     `db:"id"`
	AggregateID   uuid.UUID `db:"aggregate_id"`
	AggregateType string    `db:"aggregate_type"`
	EventType     string    `db:"event_type"`
	EventData     []byte    `db:"event_data"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r eventRow) event() Event {
	return Event{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		EventData:     r.EventData,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

// Append writes events for a single aggregate and returns the new version.
// With expectedVersion other than AnyVersion the current version must match.
func (j *Journal) Append(ctx context.Context, tx sqlx.ExtContext, aggregateID uuid.UUID, expectedVersion int, events ...Event) (int, error) {
	ctx, span := j.tracer.Start(ctx, "history.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	current, err := currentVersion(ctx, tx, aggregateID)
	if err != nil {
		return 0, err
	}
	if expectedVersion != AnyVersion && current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return current, ErrConcurrencyConflict
	}

	for i, event := range events {
		version := current + i + 1
		createdAt := event.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		var eventID int64
		err := tx.QueryRowxContext(ctx, `
			INSERT INTO book_events (aggregate_id, aggregate_type, event_type, event_data, version, created_at)
			VALUES ($1, $2, $3, $4::jsonb, $5, $6)
			RETURNING id
		`, aggregateID, event.AggregateType, event.EventType, string(event.EventData), version, createdAt).Scan(&eventID)
		if err != nil {
			if _, ok := pgerr.UniqueViolation(err); ok {
				return current, ErrConcurrencyConflict
			}
			return current, fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	return current + len(events), nil
}

// Load returns the events of one aggregate from fromVersion on, oldest first.
func (j *Journal) Load(ctx context.Context, q sqlx.QueryerContext, aggregateID uuid.UUID, fromVersion int) ([]Event, error) {
	ctx, span := j.tracer.Start(ctx, "history.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
		),
	)
	defer span.End()

	var rows []eventRow
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, version, created_at
		FROM book_events
		WHERE aggregate_id = $1 AND version >= $2
		ORDER BY version ASC
	`, aggregateID, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.event())
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

func currentVersion(ctx context.Context, q sqlx.QueryerContext, aggregateID uuid.UUID) (int, error) {
	var version int
	err := q.QueryRowxContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM book_events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return version, nil
}
