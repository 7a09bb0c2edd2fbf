// Package kafka publishes events to a Kafka topic with a synchronous
// producer. Messages are keyed by `<type>/<id>` so all changes of one
// resource land on the same partition in commit order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/edgeflare/pgjsonapi/pkg/events"
)

var errProducerNotInitialized = errors.New("kafka producer not initialized")

// Sink publishes to Kafka.
type Sink struct {
	producer sarama.SyncProducer
	config   Config
	logger   *zap.Logger
}

func (s *Sink) Connect(config json.RawMessage, logger *zap.Logger) error {
	s.logger = logger
	if err := json.Unmarshal(config, &s.config); err != nil {
		return fmt.Errorf("failed to unmarshal Kafka config: %w", err)
	}
	s.config.setDefaults()

	conf, err := s.config.ToSaramaConfig()
	if err != nil {
		return err
	}

	admin, err := sarama.NewClusterAdmin(s.config.Brokers, conf)
	if err != nil {
		return fmt.Errorf("failed to create cluster admin: %w", err)
	}
	defer admin.Close()
	if err := s.ensureTopic(admin); err != nil {
		return fmt.Errorf("failed to ensure topic: %w", err)
	}

	producer, err := sarama.NewSyncProducer(s.config.Brokers, conf)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	s.producer = producer
	return nil
}

// Message builds the producer message for e.
func (s *Sink) Message(e events.Event) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: s.config.Topic,
		Key:   sarama.StringEncoder(e.Type + "/" + e.ResourceID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("subject"), Value: []byte(e.Subject())},
			{Key: []byte("id"), Value: []byte(e.ID)},
		},
		Timestamp: e.Time,
	}, nil
}

// Publish blocks until the message is acknowledged by all in-sync replicas.
func (s *Sink) Publish(_ context.Context, e events.Event) error {
	if s.producer == nil {
		return errProducerNotInitialized
	}
	msg, err := s.Message(e)
	if err != nil {
		return err
	}
	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	s.logger.Debug("published message",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (s *Sink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

func (s *Sink) ensureTopic(admin sarama.ClusterAdmin) error {
	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}
	if _, exists := topics[s.config.Topic]; exists {
		return nil
	}
	retention := strconv.FormatInt(s.config.RetentionMS, 10)
	err = admin.CreateTopic(s.config.Topic, &sarama.TopicDetail{
		NumPartitions:     s.config.Partitions,
		ReplicationFactor: s.config.Replicas,
		ConfigEntries:     map[string]*string{"retention.ms": &retention},
	}, false)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	s.logger.Info("created topic", zap.String("topic", s.config.Topic))
	return nil
}

func init() {
	events.Register(events.ConnectorKafka, func() events.Sink { return &Sink{logger: zap.NewNop()} })
}
