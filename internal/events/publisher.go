// Package events publishes screening call events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/observability/metrics"
	"ai-screening-call-service/internal/schema"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes turn events and call summaries to separate Kafka topics.
type Publisher struct {
	writerTurn    messageWriter
	writerSummary messageWriter
	principal     string
	topicTurn     string
	topicSummary  string
	enabled       bool
	validator     *schema.Validator
	metrics       *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicTurn    string
	TopicSummary string
	Principal    string
	Enabled      bool
}

// New creates a new Kafka event publisher with separate topics for turns and summaries.
// validator may be nil to skip schema checks.
func New(cfg *Config, validator *schema.Validator) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			validator: validator,
			metrics:   m,
		}
	}

	p := &Publisher{
		principal:    cfg.Principal,
		topicTurn:    cfg.TopicTurn,
		topicSummary: cfg.TopicSummary,
		validator:    validator,
		metrics:      m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // one session's events stay on one partition
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	p.writerTurn = newWriter(cfg.TopicTurn)
	p.writerSummary = newWriter(cfg.TopicSummary)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTurn", cfg.TopicTurn).
		Str("topicSummary", cfg.TopicSummary).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// PublishTurn publishes a turn event to the turn topic.
func (p *Publisher) PublishTurn(ctx context.Context, key string, ev models.TurnEvent) error {
	if err := p.validate(ev); err != nil {
		return err
	}
	return p.publish(ctx, p.writerTurn, p.topicTurn, ev.EventType, key, ev)
}

// PublishSummary publishes a call summary to the summary topic.
func (p *Publisher) PublishSummary(ctx context.Context, key string, s models.CallSummary) error {
	if err := p.validate(s); err != nil {
		return err
	}
	return p.publish(ctx, p.writerSummary, p.topicSummary, s.EventType, key, s)
}

// Notify publishes the summary keyed by its session ID.
func (p *Publisher) Notify(ctx context.Context, s models.CallSummary) error {
	return p.PublishSummary(ctx, s.SessionID, s)
}

func (p *Publisher) validate(event any) error {
	if p.validator == nil {
		return nil
	}
	if err := p.validator.Validate(event); err != nil {
		return fmt.Errorf("refusing to publish: %w", err)
	}
	return nil
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTurn != nil {
		if e := p.writerTurn.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing turn writer")
			err = e
		}
	}
	if p.writerSummary != nil {
		if e := p.writerSummary.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing summary writer")
			err = e
		}
	}
	return err
}
