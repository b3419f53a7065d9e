package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/solarsentry/space-weather-forecast/internal/config"
	"github.com/solarsentry/space-weather-forecast/internal/domain"
)

// Publisher produces forecast bundles to a Kafka topic. It implements the
// export sink contract.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured forecast topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// Name identifies the publisher in sink metrics and logs.
func (p *Publisher) Name() string { return "kafka" }

// Publish serializes one bundle and writes it to the forecast topic.
func (p *Publisher) Publish(ctx context.Context, bundle domain.ForecastBundle) error {
	msg, err := serializeToMessage(bundle)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a bundle into a Kafka message keyed by bundle
// ID, with routing metadata in the headers.
func serializeToMessage(bundle domain.ForecastBundle) (kafkago.Message, error) {
	data, err := json.Marshal(bundle)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast bundle: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(bundle.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "risk_level", Value: []byte(bundle.RiskLevel)},
			{Key: "narrative_source", Value: []byte(bundle.NarrativeSource)},
			{Key: "generated_at", Value: []byte(bundle.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
