package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-caja/internal/events"
)

type captureScheduler struct {
	events []events.Event
	err    error
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &events.MemoryStore{}
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: scheduler,
		Notifiers: []events.Notifier{notifier},
	}

	aggregate := uuid.New()
	event, err := bus.Emit(context.Background(), events.TopicDrawerOpened, aggregate, map[string]any{"terminal": "T1"})
	require.NoError(t, err)
	require.Equal(t, []string{events.TopicDrawerOpened}, store.Topics())
	require.JSONEq(t, `{"terminal":"T1"}`, string(store.Events()[0].Payload))
	require.Len(t, scheduler.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, scheduler.events[0].ID)
	require.Equal(t, aggregate, event.AggregateID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, "T1", decoded["terminal"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: &events.MemoryStore{}}
	_, err := bus.Emit(context.Background(), " ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicSaleCompleted, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicSaleCompleted, uuid.New(), "{not json")
	require.Error(t, err)
}

func TestEmitJoinsSchedulerFailure(t *testing.T) {
	store := &events.MemoryStore{}
	bus := events.Bus{Store: store, Scheduler: &captureScheduler{err: errors.New("queue down")}}
	ev, err := bus.Emit(context.Background(), events.TopicSaleCompleted, uuid.New(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "queue down")
	require.JSONEq(t, `{}`, string(ev.Payload))
	require.Len(t, store.Events(), 1)
}

func TestLogNotifierWritesTopic(t *testing.T) {
	var buf bytes.Buffer
	bus := &events.Bus{Store: &events.MemoryStore{}, Notifiers: []events.Notifier{events.LogNotifier{Logger: zerolog.New(&buf)}}}
	_, err := bus.Emit(context.Background(), events.TopicDrawerClosed, uuid.New(), nil)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"topic":"drawer.closed"`)
}
