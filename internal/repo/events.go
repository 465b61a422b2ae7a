package repo

import (
	"context"
	"fmt"

	"github.com/noah-isme/backend-caja/internal/events"
)

// EventRepo is the durable outbox for domain events.
type EventRepo struct {
	DB DBTX
}

// InsertDomainEvent implements events.EventStore.
func (r EventRepo) InsertDomainEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(payload), ev.OccurredAt,
	)
	if err != nil {
		return events.Event{}, fmt.Errorf("repo: insert domain event: %w", err)
	}
	ev.Payload = payload
	return ev, nil
}
