// Package audit keeps the append-only history of every issue. Events are
// written through the caller's transaction so the trail commits or rolls
// back together with the state change it records.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libradesk/internal/apperr"
	"libradesk/internal/platform/db"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const tableEvents = "circulation_events"

var ErrConcurrencyConflict = apperr.Conflict("concurrency conflict: version mismatch")

// Event is one recorded fact about an issue.
type Event struct {
	ID          int64     `json:"id" db:"id"`
	AggregateID uuid.UUID `json:"aggregate_id" db:"aggregate_id"`
	EventType   string    `json:"event_type" db:"event_type"`
	Data        string    `json:"data" db:"event_data"`
	Version     int       `json:"version" db:"version"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NewEvent encodes payload as the event data.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.MarshalToString(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{EventType: eventType, Data: data}, nil
}

// Log is the event log store.
type Log struct {
	b      db.Builder
	tracer trace.Tracer
}

func NewLog(b db.Builder) *Log {
	return &Log{b: b, tracer: otel.Tracer("libradesk/audit")}
}

// Append adds events after expectedVersion. A different current version, or
// a concurrent writer claiming the same version, yields ErrConcurrencyConflict.
func (l *Log) Append(ctx context.Context, q db.Querier, aggregateID uuid.UUID, expectedVersion int, at time.Time, events ...Event) error {
	ctx, span := l.tracer.Start(ctx, "audit.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	current, err := l.CurrentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	rows := make([]any, 0, len(events))
	for i, event := range events {
		rows = append(rows, goqu.Record{
			"aggregate_id": aggregateID,
			"event_type":   event.EventType,
			"event_data":   event.Data,
			"version":      expectedVersion + i + 1,
			"created_at":   db.Timestamp(at),
		})
	}
	if _, err := db.Exec(ctx, q, l.b.Insert(tableEvents).Rows(rows...)); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrConcurrencyConflict
		}
		return apperr.Transient("failed to append events", err)
	}

	span.SetAttributes(attribute.Bool("append.success", true))
	return nil
}

// CurrentVersion returns the latest version for an aggregate, 0 when it has
// no events yet.
func (l *Log) CurrentVersion(ctx context.Context, q db.Querier, aggregateID uuid.UUID) (int, error) {
	var version sql.NullInt64
	err := db.Get(ctx, q, &version, l.b.From(tableEvents).
		Select(goqu.MAX("version")).
		Where(goqu.C("aggregate_id").Eq(aggregateID)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.Transient("failed to query version", err)
	}
	return int(version.Int64), nil
}

// LoadEvents returns the events of an aggregate in version order.
func (l *Log) LoadEvents(ctx context.Context, q db.Querier, aggregateID uuid.UUID) ([]Event, error) {
	ctx, span := l.tracer.Start(ctx, "audit.load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	events := []Event{}
	err := db.Select(ctx, q, &events, l.b.From(tableEvents).
		Select("id", "aggregate_id", "event_type", "event_data", "version", "created_at").
		Where(goqu.C("aggregate_id").Eq(aggregateID)).
		Order(goqu.C("version").Asc()))
	if err != nil {
		return nil, apperr.Transient("failed to load events", err)
	}
	for i := range events {
		events[i].CreatedAt = events[i].CreatedAt.UTC()
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
