package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/conversation-service/internal/service"
)

// Publisher fans mutation events out to Kafka. It satisfies the service
// layer's Notifier port; publish failures are logged, never returned, so a
// broker outage cannot fail a user request.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Publisher{writer: w, log: log}
}

func (p *Publisher) Publish(ctx context.Context, ev service.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorw("marshal event", "kind", ev.Kind, "err", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.ConversationID),
		Value: b,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Errorw("publish event", "kind", ev.Kind, "conversation", ev.ConversationID, "err", err)
	}
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
