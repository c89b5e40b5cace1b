package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

// MessageWriter is the part of kafka.Writer the exporter uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaExporter copies change events to a Kafka topic for downstream
// consumers. Messages are keyed by event id so duplicates can be dropped,
// and carry the table and operation as headers.
type KafkaExporter struct {
	writer MessageWriter
	topic  string
	logger logger.Interface
}

// NewKafkaExporter creates an exporter writing to topic on brokers.
func NewKafkaExporter(brokers []string, topic string, log logger.Interface) *KafkaExporter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		// Publishing happens after commit; a slow broker must not hold
		// up the request that made the change.
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil && log != nil {
				log.Warnw("failed to export change events", "count", len(messages), "error", err)
			}
		},
	}
	return NewKafkaExporterWithWriter(w, topic, log)
}

// NewKafkaExporterWithWriter is NewKafkaExporter over an existing writer.
func NewKafkaExporterWithWriter(w MessageWriter, topic string, log logger.Interface) *KafkaExporter {
	if log == nil {
		log = logger.NewNop()
	}
	return &KafkaExporter{writer: w, topic: topic, logger: log}
}

func (k *KafkaExporter) Publish(ctx context.Context, e changefeed.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.ID),
		Value: data,
		Time:  e.CommitTime,
		Headers: []kafka.Header{
			{Key: "table", Value: []byte(e.Table)},
			{Key: "operation", Value: []byte(e.Operation)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to export change event to %s: %w", k.topic, err)
	}

	k.logger.Debugw("change event exported", "event_id", e.ID, "topic", k.topic)
	return nil
}

// Close flushes pending messages.
func (k *KafkaExporter) Close() error {
	return k.writer.Close()
}
