package invalidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures both the consumer and the publisher.
type KafkaConfig struct {
	Brokers []string
	// GroupID of the consumer group. Offsets are committed manually after
	// every handled message.
	GroupID string
	Topics  []string
	// MinBytes and MaxBytes bound a fetch. Zero uses kafka-go defaults.
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

// Validate implements validation.Validatable.
func (c KafkaConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Topics, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.MaxBytes, validation.Min(c.MinBytes)),
	)
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes mutation events with a kafka-go consumer group.
type KafkaSource struct {
	reader kafkaReader
}

// NewKafkaSource joins cfg.GroupID on cfg.Topics.
func NewKafkaSource(cfg KafkaConfig) (*KafkaSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalidation: invalid kafka config: %w", err)
	}
	if cfg.GroupID == "" {
		return nil, errors.New("invalidation: kafka source requires a group id")
	}

	rc := kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		MaxWait:        cfg.MaxWait,
		CommitInterval: 0,
	}
	return &KafkaSource{reader: kafka.NewReader(rc)}, nil
}

func (s *KafkaSource) Fetch(ctx context.Context) (Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		ack:       m,
	}, nil
}

func (s *KafkaSource) Commit(ctx context.Context, msg Message) error {
	m, ok := msg.ack.(kafka.Message)
	if !ok {
		return fmt.Errorf("invalidation: message %s/%d@%d was not fetched from kafka", msg.Topic, msg.Partition, msg.Offset)
	}
	return s.reader.CommitMessages(ctx, m)
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to the first configured topic, keyed by
// feed id so all events of a feed land on one partition.
type KafkaPublisher struct {
	writer kafkaWriter
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalidation: invalid kafka config: %w", err)
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topics[0],
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...FeedMutationEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		raw, err := EncodeEvent(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.FeedID), Value: raw, Time: e.OccurredAt})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("invalidation: publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
