package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/ricesearch/rice-deteriorate/internal/pkg/errors"
)

// KafkaPublisher publishes events to Kafka topics.
type KafkaPublisher struct {
	producer    sarama.SyncProducer
	topicPrefix string

	mu     sync.RWMutex
	closed bool
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers     []string      // Kafka broker addresses
	ClientID    string        // Client identifier
	Version     string        // Kafka version (e.g., "2.8.0")
	TopicPrefix string        // Prepended to every topic
	Timeout     time.Duration // Network timeout (default: 10s)
}

// newSaramaConfig builds the producer configuration.
func newSaramaConfig(cfg *KafkaConfig) (*sarama.Config, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "rice-deteriorate"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid kafka version", err)
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = version
	kafkaConfig.ClientID = cfg.ClientID
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 3
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Net.DialTimeout = cfg.Timeout
	kafkaConfig.Net.ReadTimeout = cfg.Timeout
	kafkaConfig.Net.WriteTimeout = cfg.Timeout
	return kafkaConfig, nil
}

// NewKafkaPublisher connects a synchronous producer to the brokers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.CodeValidation, "kafka brokers cannot be empty")
	}

	kafkaConfig, err := newSaramaConfig(&cfg)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, kafkaConfig)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	return NewKafkaPublisherFromProducer(producer, cfg.TopicPrefix), nil
}

// NewKafkaPublisherFromProducer wraps an existing producer.
func NewKafkaPublisherFromProducer(producer sarama.SyncProducer, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{
		producer:    producer,
		topicPrefix: topicPrefix,
	}
}

// Publish publishes an event to a Kafka topic.
func (p *KafkaPublisher) Publish(_ context.Context, topic string, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.New(errors.CodeUnavailable, "publisher is closed")
	}

	// Serialize event to JSON
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topicPrefix + topic,
		Value: sarama.ByteEncoder(data),
		Key:   sarama.StringEncoder(event.ID), // Use event ID as partition key
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to kafka", err)
	}

	return nil
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.producer.Close(); err != nil {
		return errors.Wrap(errors.CodeInternal, "close producer", err)
	}
	return nil
}
