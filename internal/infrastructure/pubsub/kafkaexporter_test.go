package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaExporter_Publish(t *testing.T) {
	w := &fakeWriter{}
	exporter := NewKafkaExporterWithWriter(w, "autocrm.changes", nil)

	e := mustEvent(t, "internal_notes", changefeed.OperationDelete, testRow{ID: "n1", TicketID: "t1"})
	require.NoError(t, exporter.Publish(context.Background(), e))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, e.ID, string(msg.Key))
	assert.Equal(t, e.CommitTime, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "table", Value: []byte("internal_notes")},
		{Key: "operation", Value: []byte("DELETE")},
	}, msg.Headers)

	var decoded changefeed.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, "n1", decoded.RowID())

	require.NoError(t, exporter.Close())
	assert.True(t, w.closed)
}

func TestKafkaExporter_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	exporter := NewKafkaExporterWithWriter(w, "autocrm.changes", nil)

	err := exporter.Publish(context.Background(), mustEvent(t, "tickets", changefeed.OperationInsert, testRow{ID: "t1"}))
	assert.EqualError(t, err, "failed to export change event to autocrm.changes: leader not available")
}
