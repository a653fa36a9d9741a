package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

// Publisher emits location change events to the storefront's analytics
// topic. It implements domain.Publisher; the orchestrator must not block on
// it, so delivery runs on a short background deadline and failures are
// logged rather than surfaced.
type Publisher struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a Kafka producer for the events topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}
	return &Publisher{writer: w, logger: logger, metrics: metrics}
}

// Publish serializes and sends the change event.
func (p *Publisher) Publish(ctx context.Context, ev domain.ChangeEvent) {
	msg, err := serializeToMessage(ev)
	if err != nil {
		p.logger.Warn("serialize location event failed", "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.logger.Warn("publish location event failed", "error", err)
		return
	}
	p.metrics.EventsPublished.Inc()
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a change event into a Kafka message keyed by
// city|state so events for one area land in one partition.
func serializeToMessage(ev domain.ChangeEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize location event: %w", err)
	}

	key := "cleared"
	if ev.Location != nil {
		key = ev.Location.City + "|" + ev.Location.State
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "published_at", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
