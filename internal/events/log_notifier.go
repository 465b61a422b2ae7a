package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes every emitted event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("topic", ev.Topic).
		Str("event_id", ev.ID.String()).
		Str("aggregate_id", ev.AggregateID.String()).
		Time("occurred_at", ev.OccurredAt).
		Msg("domain event")
	return nil
}
