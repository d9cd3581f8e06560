package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_cart/market/internal/circuitbreaker"
	"github.com/fjod/go_cart/market/internal/repository"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultTick      = time.Second
	defaultBatchSize = 100
)

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*repository.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	eventTick time.Duration
	batchSize int
	store     OutboxStore
	writer    MessageWriter
	breaker   *gobreaker.CircuitBreaker[struct{}]
	log       *zap.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same consumer, same partition
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(store OutboxStore, writer MessageWriter, log *zap.Logger) *OutboxPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{
		eventTick: defaultTick,
		batchSize: defaultBatchSize,
		store:     store,
		writer:    writer,
		breaker:   circuitbreaker.New[struct{}](circuitbreaker.DefaultConfig("outbox-kafka"), log),
		log:       log,
	}
}

// Run polls until ctx is cancelled, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.eventTick)
	defer ticker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents returns how many events were published.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.store.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := 0
	for _, event := range events {
		if errPublish := p.publish(ctx, event); errPublish != nil {
			if circuitbreaker.IsOpen(errPublish) {
				p.log.Warn("kafka breaker open, postponing outbox batch", zap.Int("pending", len(events)-published))
				return published
			}
			p.log.Error("failed to publish outbox event", zap.String("event_id", event.ID), zap.Error(errPublish))
			continue
		}

		if errMark := p.store.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			p.log.Error("failed to mark outbox event as processed", zap.String("event_id", event.ID), zap.Error(errMark))
			continue
		}
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // consumer id for ordering
		Value: event.Payload,             // Already JSON from database
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.writer.WriteMessages(ctx, msg)
	})
	return err
}
