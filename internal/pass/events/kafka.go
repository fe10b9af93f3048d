package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"walletpass/internal/platform/logger"
	"walletpass/pkg/platform/circuit"
)

// KafkaPublisher produces events asynchronously, keyed by message ID so all
// events for one message land on one partition. A circuit breaker stops
// producing while the cluster keeps rejecting records.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type KafkaOption func(*KafkaPublisher)

func WithLogger(l *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		p.logger = l
	}
}

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(p *KafkaPublisher) {
		p.breaker = b
	}
}

func NewKafka(brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RecordRetries(3),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &KafkaPublisher{
		client:  client,
		topic:   topic,
		logger:  logger.Discard(),
		breaker: circuit.New("kafka-events"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	resp, err := kadm.NewClient(p.client).CreateTopic(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if !p.breaker.Allow() {
		p.logger.DebugContext(ctx, "event dropped, circuit open", "type", event.Type)
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to encode event", "type", event.Type, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.MessageID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "type", Value: []byte(event.Type)},
		},
	}
	// the run's context ends with the HTTP request; delivery must outlive it
	p.client.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			if _, change := p.breaker.RecordFailure(); change.Opened {
				p.logger.Warn("event publishing paused", "breaker", p.breaker.Name())
			}
			p.logger.Error("failed to publish event",
				"type", event.Type,
				"message_id", event.MessageID,
				"error", err,
			)
			return
		}
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.Info("event publishing resumed", "breaker", p.breaker.Name())
		}
	})
}

// Close flushes buffered records before closing the client.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	defer p.client.Close()
	return p.client.Flush(ctx)
}
