package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by the forwarder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a hash-balanced writer so events of one business keep their order.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Logger:       kafka.LoggerFunc(func(string, ...any) {}),
	}
}

// KafkaForwarder mirrors bus events to a Kafka topic. Bus handlers only
// enqueue; Run performs the writes.
type KafkaForwarder struct {
	writer MessageWriter
	queue  chan kafka.Message
	logger *zerolog.Logger
	unsubs []func()
}

func NewKafkaForwarder(writer MessageWriter, bufferSize int, logger *zerolog.Logger) *KafkaForwarder {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &KafkaForwarder{
		writer: writer,
		queue:  make(chan kafka.Message, bufferSize),
		logger: logger,
	}
}

// Attach subscribes the forwarder to every event type on the bus.
func (f *KafkaForwarder) Attach(bus *EventBus, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = AllEventTypes
	}
	for _, et := range eventTypes {
		f.unsubs = append(f.unsubs, bus.Subscribe(et, f.handle))
	}
}

func (f *KafkaForwarder) handle(event *Event) error {
	msg := kafka.Message{
		Key:   []byte(businessKey(event.Payload)),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}

	select {
	case f.queue <- msg:
	default:
		f.logger.Warn().Str("event_type", event.Type).Msg("Kafka forward queue full, dropping event")
	}
	return nil
}

// Run drains the queue until ctx is cancelled, then detaches and closes the writer.
func (f *KafkaForwarder) Run(ctx context.Context) {
	defer func() {
		for _, unsub := range f.unsubs {
			unsub()
		}
		if err := f.writer.Close(); err != nil {
			f.logger.Error().Err(err).Msg("Failed to close kafka writer")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.queue:
			if err := f.writer.WriteMessages(ctx, msg); err != nil {
				f.logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Failed to forward event to kafka")
			}
		}
	}
}

func businessKey(payload []byte) string {
	var probe struct {
		BusinessID int64 `json:"business_id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.BusinessID == 0 {
		return "global"
	}
	return strconv.FormatInt(probe.BusinessID, 10)
}
