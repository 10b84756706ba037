package events

import (
	"context"
	"encoding/json"
	"time"

	"carebook/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer the forwarder needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the message value written to the topic.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// KafkaForwarder copies bus events to a kafka topic. Publishing never blocks
// the bus: events are buffered and dropped with a warning when the buffer is full.
type KafkaForwarder struct {
	writer KafkaWriter
	queue  chan Event
	logger *zerolog.Logger
}

func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaForwarder(writer KafkaWriter, bufferSize int, logger *zerolog.Logger) *KafkaForwarder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &KafkaForwarder{
		writer: writer,
		queue:  make(chan Event, bufferSize),
		logger: logger,
	}
}

// Attach subscribes the forwarder to every event on the bus.
func (f *KafkaForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(func(event *Event) error {
		select {
		case f.queue <- *event:
		default:
			f.logger.Warn().Str("type", event.Type).Msg("kafka forward queue full, dropping event")
		}
		return nil
	})
}

// Run drains the queue until ctx is done, then closes the writer.
func (f *KafkaForwarder) Run(ctx context.Context) {
	defer func() {
		if err := f.writer.Close(); err != nil {
			f.logger.Error().Err(err).Msg("failed to close kafka writer")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-f.queue:
			f.forward(ctx, event)
		}
	}
}

func (f *KafkaForwarder) forward(ctx context.Context, event Event) {
	data, err := json.Marshal(Envelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt})
	if err != nil {
		f.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal event for kafka")
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
		Time:  event.CreatedAt,
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error().Err(err).Str("type", event.Type).Msg("failed to publish event to kafka")
		return
	}
	f.logger.Debug().Str("type", event.Type).Msg("event forwarded to kafka")
}
