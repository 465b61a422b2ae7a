package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-caja/internal/events"
	"github.com/noah-isme/backend-caja/internal/resilience"
)

// TaskTypeEvent is the asynq task type carrying a domain event.
const TaskTypeEvent = "caja:event"

// DefaultQueue is the asynq queue domain events are scheduled on.
const DefaultQueue = "events"

// Enqueuer is the subset of *asynq.Client used by the scheduler.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler hands persisted domain events to the worker through asynq.
// The event id doubles as the task id so an event is enqueued at most once.
// With a Breaker set, enqueueing stops while Redis keeps failing; the event
// row is already persisted by then.
type Scheduler struct {
	Client      Enqueuer
	Queue       string
	MaxAttempts int
	Timeout     time.Duration
	Breaker     *resilience.Breaker
}

// Schedule implements events.DeliveryScheduler.
func (s Scheduler) Schedule(ctx context.Context, ev events.Event) error {
	if s.Client == nil {
		return errors.New("queue: asynq client not configured")
	}
	task, err := NewEventTask(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.TaskID(ev.ID.String()),
		asynq.Queue(s.queue()),
		asynq.MaxRetry(s.maxRetry()),
	}
	if s.Timeout > 0 {
		opts = append(opts, asynq.Timeout(s.Timeout))
	}
	enqueue := func(ctx context.Context) error {
		_, err := s.Client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return err
	}
	if s.Breaker != nil {
		err = s.Breaker.Do(ctx, enqueue)
	} else {
		err = enqueue(ctx)
	}
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", ev.Topic, err)
	}
	return nil
}

func (s Scheduler) queue() string {
	if s.Queue == "" {
		return DefaultQueue
	}
	return s.Queue
}

func (s Scheduler) maxRetry() int {
	if s.MaxAttempts <= 0 {
		return 10
	}
	return s.MaxAttempts
}

// NewEventTask encodes ev as an asynq task.
func NewEventTask(ev events.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("queue: encode event: %w", err)
	}
	return asynq.NewTask(TaskTypeEvent, payload), nil
}

// DecodeEvent extracts the domain event from an asynq task.
func DecodeEvent(t *asynq.Task) (events.Event, error) {
	var ev events.Event
	if t == nil {
		return ev, errors.New("queue: nil task")
	}
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("queue: decode event: %w", err)
	}
	if ev.Topic == "" {
		return ev, errors.New("queue: event without topic")
	}
	return ev, nil
}
