package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// StageEvent is one pipeline transition, keyed by request ID on the topic.
type StageEvent struct {
	RequestID string    `json:"request_id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Producer publishes pipeline stage events to Kafka. It implements the
// orchestrator's event sink; publish failures are logged, never surfaced to
// the pipeline.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka event producer initialized")

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishStage publishes one stage-transition event.
func (p *Producer) PublishStage(ctx context.Context, requestID, stage, status, detail string) {
	event := StageEvent{
		RequestID: requestID,
		Stage:     stage,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to marshal stage event")
		return
	}

	msg := kafka.Message{
		Key:   []byte(requestID),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("request_id", requestID).
			Str("stage", stage).
			Str("topic", p.topic).
			Msg("Failed to publish stage event")
		return
	}

	log.Debug().
		Str("request_id", requestID).
		Str("stage", stage).
		Str("status", status).
		Msg("Stage event published")
}

// Close closes the producer
func (p *Producer) Close() error {
	log.Info().Msg("Closing Kafka event producer")
	return p.writer.Close()
}
