package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/config"
	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/domain"
)

// Writer produces outbound messages: gate commands, alert notifications and
// risk dashboards. The topic is chosen per message.
// It implements domain.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

var _ domain.Publisher = (*Writer)(nil)

// NewWriter creates a Kafka producer with no default topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one message to topic. Messages with the same key land on
// the same partition, so per-station ordering is preserved downstream.
func (w *Writer) Publish(ctx context.Context, topic string, key, value []byte) error {
	if topic == "" {
		return fmt.Errorf("publish: empty topic")
	}
	if err := w.writer.WriteMessages(ctx, buildMessage(topic, key, value, domain.Now())); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func buildMessage(topic string, key, value []byte, now time.Time) kafkago.Message {
	return kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: value,
		Headers: []kafkago.Header{
			{Key: "content_type", Value: []byte("application/json")},
			{Key: "produced_at", Value: []byte(now.Format(time.RFC3339))},
		},
	}
}
