package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"crypto-scanner/internal/alert"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AlertPublisher forwards fired alerts to a Kafka topic as JSON, keyed by
// alert key so every (type, symbol) lands on one partition.
type AlertPublisher struct {
	writer messageWriter
	log    *slog.Logger
}

func NewAlertPublisher(brokers []string, topic string, logger *slog.Logger) *AlertPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Error("kafka publish failed", slog.Int("messages", len(msgs)), slog.String("err", err.Error()))
			}
		},
	}
	return &AlertPublisher{writer: w, log: logger}
}

// PublishAlerts never blocks the caller on the broker; the writer is async.
func (p *AlertPublisher) PublishAlerts(ctx context.Context, alerts []alert.Alert) {
	msgs, err := messagesFor(alerts)
	if err != nil {
		p.log.Error("encode alerts", slog.String("err", err.Error()))
		return
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("kafka publish", slog.String("err", err.Error()))
	}
}

func (p *AlertPublisher) Close() error {
	return p.writer.Close()
}

func messagesFor(alerts []alert.Alert) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal alert %s: %w", a.Key, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.Key),
			Value: b,
			Time:  a.Timestamp,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(a.Type)},
				{Key: "id", Value: []byte(a.ID.String())},
			},
		})
	}
	return msgs, nil
}
