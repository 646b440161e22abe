package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestBusDispatchesToSubscribersSynchronously(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.Subscribe(MessageCreated, func(_ context.Context, evt Event) error {
		got = append(got, "first:"+evt.TenantID)
		return nil
	})
	bus.Subscribe(MessageCreated, func(_ context.Context, evt Event) error {
		got = append(got, "second:"+evt.TenantID)
		return nil
	})
	bus.Subscribe(MessageStatusChanged, func(_ context.Context, _ Event) error {
		t.Fatal("wrong event type delivered")
		return nil
	})

	bus.Publish(context.Background(), New(MessageCreated, "tenant-1", nil))
	assert.Equal(t, []string{"first:tenant-1", "second:tenant-1"}, got)
}

func TestBusSwallowsHandlerErrors(t *testing.T) {
	bus := NewBus(nil)
	calls := 0
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		calls++
		return errors.New("boom")
	})
	bus.Subscribe(MessageCreated, func(context.Context, Event) error {
		calls++
		return nil
	})

	bus.Publish(context.Background(), New(MessageCreated, "t", nil))
	assert.Equal(t, 2, calls)
}

func TestBusForwardsToSinkAndCloses(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	bus := NewBus(sink)

	evt := New(MessageCreated, "tenant-1", map[string]string{"message_id": "m1"})
	bus.Publish(context.Background(), evt)
	require.NoError(t, bus.Close())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 1)
	assert.Equal(t, evt.ID, sink.events[0].ID)
	assert.True(t, sink.closed)
}

func TestNewSinkFromConfig(t *testing.T) {
	sink, err := NewSinkFromConfig(&config.Config{EventSink: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", sink.Name())

	_, err = NewSinkFromConfig(&config.Config{EventSink: "redis"})
	assert.Error(t, err)

	_, err = NewSinkFromConfig(&config.Config{EventSink: "kafka"})
	assert.Error(t, err)
}
