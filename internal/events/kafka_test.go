package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	writer := &recordingWriter{}
	pub := NewKafkaPublisherWithWriter(writer, "exiloncms.extensions")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	err := pub.Publish(context.Background(), Event{
		Type:        PluginEnabled,
		Kind:        "plugin",
		ExtensionID: "shop",
		Version:     "1.2.0",
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	require.Equal(t, "plugin:shop", string(msg.Key))
	require.Equal(t, "event-type", msg.Headers[0].Key)
	require.Equal(t, PluginEnabled, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	require.Equal(t, "shop", decoded.ExtensionID)
	require.True(t, decoded.OccurredAt.Equal(fixed))

	require.NoError(t, pub.Close())
	require.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	pub := NewKafkaPublisherWithWriter(writer, "topic")

	err := pub.Publish(context.Background(), Event{Type: UpdatesAvailable})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker down")
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	require.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	pub, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestEventKey(t *testing.T) {
	require.Equal(t, UpdatesAvailable, Event{Type: UpdatesAvailable}.Key())
	require.Equal(t, "theme:carbon", Event{Type: ThemeActivated, Kind: "theme", ExtensionID: "carbon"}.Key())
}
