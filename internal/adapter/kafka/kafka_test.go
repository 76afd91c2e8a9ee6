package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tnk2209/smart-farm-view-deploy-sub001/internal/config"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("STN-0042"),
		Value:     []byte(`{"device_id":"STN-0042"}`),
		Topic:     "station-telemetry",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "gateway", Value: []byte("lora-3")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("STN-0042"), raw.Key)
	assert.JSONEq(t, `{"device_id":"STN-0042"}`, string(raw.Value))
	assert.Equal(t, "station-telemetry", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "lora-3", raw.Headers["gateway"])
	assert.Nil(t, raw.Commit)
}

func TestMapMessageToRawEvent_NoHeaders(t *testing.T) {
	raw := mapMessageToRawEvent(kafkago.Message{Topic: "station-status"})
	assert.NotNil(t, raw.Headers)
	assert.Empty(t, raw.Headers)
}

func TestBuildMessage(t *testing.T) {
	now := time.Date(2025, 6, 11, 8, 0, 0, 0, time.UTC)

	msg := buildMessage("station-commands", []byte("STN-0042"), []byte(`{"action":"lock"}`), now)

	assert.Equal(t, "station-commands", msg.Topic)
	assert.Equal(t, []byte("STN-0042"), msg.Key)
	assert.Equal(t, `{"action":"lock"}`, string(msg.Value))
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "content_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("application/json"), msg.Headers[0].Value)
	assert.Equal(t, "produced_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestPublish_EmptyTopic(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:9092"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	err := w.Publish(context.Background(), "", []byte("STN-0042"), []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty topic")
}
