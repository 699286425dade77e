package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/watertemp-etl/internal/domain"
)

// Publisher announces rewritten stations on a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the station update topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, logger: logger}
}

// Publish writes one message per event in a single WriteMessages call.
func (p *Publisher) Publish(ctx context.Context, events []domain.StationEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish station events: %w", err)
	}
	p.logger.Debug("station events published", "count", len(msgs), "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a StationEvent into a Kafka message keyed by
// station code, so updates to one station stay ordered on one partition.
func serializeToMessage(event domain.StationEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event.Station)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize station %s: %w", event.Station.StationCode, err)
	}
	return kafkago.Message{
		Key:   []byte(event.Station.StationCode),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(domain.EventStationUpdated)},
			{Key: "processed_at", Value: []byte(event.ProcessedAt.Format(time.RFC3339))},
			{Key: "run_id", Value: []byte(event.RunID)},
			{Key: "mode", Value: []byte(event.Mode)},
		},
	}, nil
}
