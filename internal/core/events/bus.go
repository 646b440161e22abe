// Package events is the in-process event stream of the engage core. Local
// subscribers (unread counters) run synchronously inside Publish; the
// external sink (Redis, RabbitMQ or the log) is fire-and-forget.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

const (
	MessageCreated            = "message.created"
	MessageStatusChanged      = "message.status_changed"
	ConversationStatusChanged = "conversation.status_changed"
	CampaignContactChanged    = "campaign_contact.changed"
)

// Event is what gets published. Payload must be JSON-serializable.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType, tenantID string, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Handler reacts to an event. Errors are logged, never returned to the
// publisher.
type Handler func(ctx context.Context, evt Event) error

// Publisher is the side of the bus the services depend on.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Sink forwards events outside the process.
type Sink interface {
	Name() string
	Send(ctx context.Context, evt Event) error
	Close() error
}

type Bus struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	sink        Sink
	sinkTimeout time.Duration
	inflight    sync.WaitGroup
}

func NewBus(sink Sink) *Bus {
	return &Bus{
		handlers:    make(map[string][]Handler),
		sink:        sink,
		sinkTimeout: 5 * time.Second,
	}
}

func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[evt.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			utils.LogError("event handler failed", err, map[string]interface{}{
				"event_type": evt.Type,
				"event_id":   evt.ID,
				"tenant_id":  evt.TenantID,
			})
		}
	}

	if b.sink == nil {
		return
	}
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		sctx, cancel := context.WithTimeout(context.Background(), b.sinkTimeout)
		defer cancel()
		if err := b.sink.Send(sctx, evt); err != nil {
			utils.LogWarn("event sink publish failed", map[string]interface{}{
				"sink":       b.sink.Name(),
				"event_type": evt.Type,
				"event_id":   evt.ID,
				"error":      err.Error(),
			})
		}
	}()
}

// Close waits for in-flight sink sends and closes the sink.
func (b *Bus) Close() error {
	b.inflight.Wait()
	if b.sink == nil {
		return nil
	}
	return b.sink.Close()
}
