package events

import (
	"encoding/json"
	"sync"
	"time"

	"carebook/internal/metrics"
	"carebook/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventAppointmentCreated   = "appointment_created"
	EventAppointmentUpdated   = "appointment_updated"
	EventAppointmentCancelled = "appointment_cancelled"
	EventAppointmentCheckedIn = "appointment_checked_in"
	EventAppointmentCompleted = "appointment_completed"
	EventWalletCredited       = "wallet_credited"
	EventWalletDebited        = "wallet_debited"
	EventMessageSent          = "message_sent"
	EventConversationDeleted  = "conversation_deleted"
	EventAvailabilityChanged  = "availability_changed"
)

// AppointmentEventPayload describes the minimal appointment snapshot for event consumers.
type AppointmentEventPayload struct {
	AppointmentID string       `json:"appointment_id"`
	SeriesID      string       `json:"series_id,omitempty"`
	ProviderID    string       `json:"provider_id"`
	ClientID      string       `json:"client_id"`
	ServiceName   string       `json:"service_name"`
	Date          string       `json:"date"`
	Time          string       `json:"time"`
	Status        string       `json:"status"`
	Earnings      models.Money `json:"earnings"`
	ActorID       string       `json:"actor_id,omitempty"`
}

// NewAppointmentPayload snapshots an appointment for publishing.
func NewAppointmentPayload(a *models.Appointment, actorID string) AppointmentEventPayload {
	return AppointmentEventPayload{
		AppointmentID: a.ID,
		SeriesID:      a.SeriesID,
		ProviderID:    a.ProviderID,
		ClientID:      a.ClientID,
		ServiceName:   a.ServiceName,
		Date:          a.Date,
		Time:          a.Time,
		Status:        a.Status,
		Earnings:      a.Earnings,
		ActorID:       actorID,
	}
}

// BookingPayload is published once per booking request, covering every
// appointment it created.
type BookingPayload struct {
	SeriesID       string   `json:"series_id,omitempty"`
	ProviderID     string   `json:"provider_id"`
	ClientID       string   `json:"client_id"`
	ServiceName    string   `json:"service_name"`
	AppointmentIDs []string `json:"appointment_ids"`
	Dates          []string `json:"dates"`
}

// WalletEventPayload carries one appended ledger transaction.
type WalletEventPayload struct {
	UserID      string                   `json:"user_id"`
	Transaction models.WalletTransaction `json:"transaction"`
	Balance     models.Money             `json:"balance"`
}

// ConversationEventPayload is published for messages and conversation removal.
type ConversationEventPayload struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	all         []EventHandler
	seq         int64
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are dropped until a
// logger is set with WithLogger.
func NewEventBus() *EventBus {
	nop := zerolog.Nop()
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: &nop}
}

// WithLogger sets where handler errors are reported.
func (b *EventBus) WithLogger(logger *zerolog.Logger) *EventBus {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that sees every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	failed := 0
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			failed++
			b.logger.Error().Err(err).
				Int64("event_id", event.ID).
				Str("event_type", event.Type).
				Msg("event handler failed")
		}
	}
	if failed > 0 {
		metrics.IncEventHandlerErrors(event.Type, failed)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
