// Package kafka wraps kafka-go with FlixBridge defaults for the
// committed-event fan-out topic.
package kafka

import (
	"context"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is the slice of the producer the bridge service needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
	Close(ctx context.Context) error
}

// Producer publishes committed events, keyed by source so events from one
// integration stay ordered within a partition.
type Producer struct {
	writer *kafkago.Writer
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string
	MaxAttempts  int
}

// NewProducer constructs a Producer from the given configuration. Writes
// require acknowledgement from all in-sync replicas: a committed event must
// not be lost by the fan-out either.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: kafkago.RequireAll,
			Compression:  compressionFromString(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
		},
	}
}

// Publish sends one message with optional headers.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers map[string]string) error {
	msg := kafkago.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close(ctx context.Context) error {
	return p.writer.Close()
}

func compressionFromString(name string) kafkago.Compression {
	switch strings.ToLower(name) {
	case "gzip":
		return kafkago.Gzip
	case "lz4":
		return kafkago.Lz4
	case "zstd":
		return kafkago.Zstd
	default:
		return kafkago.Snappy
	}
}
