package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"discoveryScope/internal/model"
	"discoveryScope/internal/telemetry"
)

const defaultTopicPrefix = "discovery"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublisherConfig struct {
	Brokers     []string
	TopicPrefix string
}

// Publisher streams snapshots to one topic per chain.
type Publisher struct {
	writer messageWriter
	prefix string
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 500 * time.Millisecond,
	}
	return &Publisher{writer: writer, prefix: cfg.TopicPrefix}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// PutSnapshot publishes the snapshot keyed by contract address.
func (p *Publisher) PutSnapshot(ctx context.Context, snapshot model.Snapshot) error {
	tracer := otel.Tracer("discoveryscope/kafka")
	ctx, span := tracer.Start(ctx, "discovery.publish_snapshot", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chain.id", int64(snapshot.ChainID)),
		attribute.Int64("block.number", int64(snapshot.BlockNumber)),
		attribute.String("address", snapshot.Address),
		attribute.Int("fields", len(snapshot.Fields)),
	)

	msg, err := p.message(ctx, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish snapshot %s@%d: %w", snapshot.Address, snapshot.BlockNumber, err)
	}
	return nil
}

func (p *Publisher) message(ctx context.Context, snapshot model.Snapshot) (kafka.Message, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)
	return kafka.Message{
		Topic:   p.topicForChain(snapshot.ChainID),
		Key:     []byte(snapshot.Address),
		Value:   payload,
		Headers: headers,
	}, nil
}

func (p *Publisher) topicForChain(chainID uint64) string {
	return fmt.Sprintf("%s-%d", p.prefix, chainID)
}
