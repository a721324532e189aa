// Package kafka publishes admin audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"quiz/internal/audit"
)

const DefaultTopic = "quiz.admin.audit"

// Publisher implements audit.Sink. Records are keyed by admin ID so one
// admin's actions stay ordered within a partition.
type Publisher struct {
	client *kgo.Client
	topic  string
}

type Option func(*config)

type config struct {
	partitions        int32
	replicationFactor int16
	produceTimeout    time.Duration
}

func WithPartitions(n int32) Option {
	return func(c *config) {
		c.partitions = n
	}
}

func WithReplicationFactor(n int16) Option {
	return func(c *config) {
		c.replicationFactor = n
	}
}

func WithProduceTimeout(d time.Duration) Option {
	return func(c *config) {
		c.produceTimeout = d
	}
}

// New connects to brokers and makes sure topic exists.
func New(ctx context.Context, brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	cfg := config{partitions: 1, replicationFactor: 1, produceTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(cfg.produceTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := EnsureTopic(ctx, kadm.NewClient(client), topic, cfg.partitions, cfg.replicationFactor); err != nil {
		client.Close()
		return nil, err
	}
	return &Publisher{client: client, topic: topic}, nil
}

// EnsureTopic creates topic unless it already exists.
func EnsureTopic(ctx context.Context, adm *kadm.Client, topic string, partitions int32, replicationFactor int16) error {
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Topic() string { return p.topic }

// Append produces event synchronously.
func (p *Publisher) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.AdminID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "action", Value: []byte(event.Action)},
		},
		Timestamp: event.OccurredAt,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
