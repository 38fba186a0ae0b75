package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Astemirdum/library-circulation/pkg/circuit_breaker"
	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type publisher struct {
	producer sarama.SyncProducer
	cb       circuit_breaker.CircuitBreaker
	topic    string
	log      *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, log *zap.Logger) Publisher {
	return &publisher{
		producer: producer,
		cb:       circuit_breaker.New(100, 10*time.Second, 0.2, 2),
		topic:    CirculationTopic,
		log:      log.Named("publisher"),
	}
}

// Publish sends the event keyed by book so that transitions of one title keep their order.
func (p *publisher) Publish(_ context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.BookID, 10)),
		Value: sarama.ByteEncoder(data),
	}
	return p.cb.Call(func() error {
		partition, offset, err := p.producer.SendMessage(msg)
		if err != nil {
			return err
		}
		p.log.Debug("event published",
			zap.String("type", string(event.Type)),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
		return nil
	})
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
