package queue

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/obs"
)

// HandlerFunc reacts to one domain event.
type HandlerFunc func(ctx context.Context, ev events.Event) error

// Router dispatches event tasks by topic. Topics without a handler are acknowledged.
type Router struct {
	Logger   zerolog.Logger
	handlers map[string]HandlerFunc
}

// Handle registers fn for topic.
func (r *Router) Handle(topic string, fn HandlerFunc) {
	if r.handlers == nil {
		r.handlers = make(map[string]HandlerFunc)
	}
	r.handlers[topic] = fn
}

// ProcessTask implements asynq.Handler.
func (r *Router) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ev, err := DecodeEvent(t)
	if err != nil {
		obs.RecordEventProcessed("unknown", "invalid")
		r.Logger.Error().Err(err).Msg("drop malformed event task")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	log := r.Logger.With().Str("topic", ev.Topic).Str("event_id", ev.ID.String()).Str("aggregate_id", ev.AggregateID.String()).Logger()
	fn, ok := r.handlers[ev.Topic]
	if !ok {
		obs.RecordEventProcessed(ev.Topic, "ignored")
		log.Debug().Msg("no handler for event")
		return nil
	}
	if err := fn(ctx, ev); err != nil {
		obs.RecordEventProcessed(ev.Topic, "error")
		log.Warn().Err(err).Msg("event handler failed")
		return err
	}
	obs.RecordEventProcessed(ev.Topic, "ok")
	log.Info().Msg("event processed")
	return nil
}

// NewServeMux routes event tasks to r.
func NewServeMux(r *Router) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeEvent, r)
	return mux
}

// ReportInvalidator drops cached reports.
type ReportInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RegisterDefaults wires the worker's reactions to register events.
func RegisterDefaults(r *Router, reports ReportInvalidator) {
	invalidate := func(ctx context.Context, _ events.Event) error {
		if reports == nil {
			return nil
		}
		return reports.Invalidate(ctx)
	}
	r.Handle(events.TopicSaleCompleted, invalidate)
	r.Handle(events.TopicExpenseRecorded, invalidate)
	r.Handle(events.TopicDrawerClosed, invalidate)
	r.Handle(events.TopicDrawerDiscrepancy, func(_ context.Context, ev events.Event) error {
		r.Logger.Warn().Str("session_id", ev.AggregateID.String()).RawJSON("discrepancy", ev.Payload).Msg("drawer closed with discrepancy")
		return nil
	})
}
