package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// KafkaConfig holds broker connection settings.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	Username     string
	Password     string
	TLS          bool
	DialTimeout  time.Duration
	BatchTimeout time.Duration
}

func (c KafkaConfig) topic() string {
	if c.Topic == "" {
		return DefaultTopic
	}
	return c.Topic
}

func (c KafkaConfig) tlsConfig() *tls.Config {
	if !c.TLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func (c KafkaConfig) mechanism() *plain.Mechanism {
	if c.Username == "" {
		return nil
	}
	return &plain.Mechanism{Username: c.Username, Password: c.Password}
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes one JSON message per chunk record, keyed by bundle id.
type KafkaPublisher struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher with a kafka-go writer.
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	transport := &kafka.Transport{
		DialTimeout: cfg.DialTimeout,
		TLS:         cfg.tlsConfig(),
	}
	if m := cfg.mechanism(); m != nil {
		transport.SASL = m
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.topic(),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Transport:              transport,
	}
	return NewKafkaPublisherWithWriter(w, logger), nil
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, logger: logging.OrNop(logger).Named("kafka-publisher")}
}

// Publish writes every record and waits for the brokers to acknowledge them.
func (p *KafkaPublisher) Publish(ctx context.Context, records []domain.TextChunk) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode chunk record: %w", err)
		}
		msgs[i] = kafka.Message{Key: []byte(r.BundleID), Value: value}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d chunk records: %w", len(msgs), err)
	}
	p.logger.Debug("published chunk records", zap.Int("count", len(msgs)), zap.String("bundleId", records[0].BundleID))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// MessageReader is the part of kafka.Reader the sink uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink consumes chunk records from the topic and stores them. Offsets are committed
// only after the store write succeeds, so delivery is at least once.
type Sink struct {
	reader MessageReader
	store  db.ChunkStore
	logger *zap.Logger
}

// NewKafkaSink creates a Sink reading the topic as a consumer group member.
func NewKafkaSink(cfg KafkaConfig, store db.ChunkStore, logger *zap.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	dialer := &kafka.Dialer{
		Timeout:   cfg.DialTimeout,
		DualStack: true,
		TLS:       cfg.tlsConfig(),
	}
	if m := cfg.mechanism(); m != nil {
		dialer.SASLMechanism = m
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.topic(),
		Dialer:  dialer,
	})
	return NewSink(r, store, logger), nil
}

// NewSink wraps an existing reader.
func NewSink(r MessageReader, store db.ChunkStore, logger *zap.Logger) *Sink {
	return &Sink{reader: r, store: store, logger: logging.OrNop(logger).Named("chunk-sink")}
}

// Run consumes until ctx is cancelled. Undecodable messages are logged and skipped.
func (s *Sink) Run(ctx context.Context) error {
	defer s.reader.Close()

	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := s.handle(ctx, msg); err != nil {
			return err
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (s *Sink) handle(ctx context.Context, msg kafka.Message) error {
	var record domain.TextChunk
	if err := json.Unmarshal(msg.Value, &record); err != nil || record.BundleID == "" {
		s.logger.Warn("skipping malformed chunk record",
			zap.Int64("offset", msg.Offset),
			zap.Int("partition", msg.Partition),
			zap.Error(err))
		return nil
	}

	if err := s.store.SaveChunks(ctx, []domain.TextChunk{record}); err != nil {
		return fmt.Errorf("store chunk record at offset %d: %w", msg.Offset, err)
	}
	return nil
}
