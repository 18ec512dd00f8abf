package repository

import (
	"context"
	"encoding/json"

	"campus_chat_service/internal/chat/domain"

	"github.com/segmentio/kafka-go"
)

// EventSink durable copy of published envelopes
type EventSink interface {
	Append(ctx context.Context, env domain.Envelope) error
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEventLog write envelopes to a kafka topic keyed by target id
type KafkaEventLog struct {
	writer kafkaWriter
}

// NewKafkaEventLog create kafka event sink
func NewKafkaEventLog(writer *kafka.Writer) *KafkaEventLog {
	return &KafkaEventLog{writer: writer}
}

// Append write one envelope
func (k *KafkaEventLog) Append(ctx context.Context, env domain.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.TargetID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(env.Event)},
			{Key: "target", Value: []byte(env.Target)},
		},
	})
	if err != nil {
		return domain.NewTransientError("kafka write "+string(env.Event), err)
	}
	return nil
}
