package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client used by KafkaSender.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaSender publishes messages to the mail topic. Sends are asynchronous:
// Send returns once the record is buffered, and delivery failures are logged.
type KafkaSender struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewKafkaSender(producer Producer, topic string, logger *slog.Logger) *KafkaSender {
	return &KafkaSender{producer: producer, topic: topic, logger: logger}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(msg.Recipient),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "template", Value: []byte(msg.Template)},
		},
	}
	// The request context may be cancelled before the broker acks.
	s.producer.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			s.logger.ErrorContext(ctx, "mail delivery to queue failed",
				"error", err,
				"template", msg.Template,
				"topic", r.Topic,
			)
		}
	})
	return nil
}
