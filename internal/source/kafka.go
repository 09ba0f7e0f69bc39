package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type KafkaConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	AutoOffsetReset string
}

// KafkaSource consumes one traffic line per message value
type KafkaSource struct {
	config KafkaConfig
	reader *kafka.Reader
	logger *logrus.Logger
}

func NewKafkaSource(config KafkaConfig, logger *logrus.Logger) (*KafkaSource, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if config.GroupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}

	var startOffset int64
	switch config.AutoOffsetReset {
	case "earliest":
		startOffset = kafka.FirstOffset
	default:
		startOffset = kafka.LastOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
		MaxWait:        1 * time.Second,
	})

	return &KafkaSource{
		config: config,
		reader: reader,
		logger: logger,
	}, nil
}

func (s *KafkaSource) Name() string {
	return "kafka:" + s.config.Topic
}

func (s *KafkaSource) Open(ctx context.Context) (Stream, error) {
	return &kafkaStream{source: s}, nil
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

type kafkaStream struct {
	source *KafkaSource
}

func (k *kafkaStream) Next(ctx context.Context) (string, error) {
	msg, err := k.source.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", unavailable(k.source.Name(), err)
	}
	k.source.logger.Debugf("kafka message topic=%s partition=%d offset=%d", msg.Topic, msg.Partition, msg.Offset)
	return string(msg.Value), nil
}

func (k *kafkaStream) Close() error {
	return nil
}
