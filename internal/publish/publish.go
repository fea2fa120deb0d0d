// Package publish hands ranked proposals to downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"options-engine/internal/analytics"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/logging"
	"options-engine/internal/metrics"
	"options-engine/internal/models"
)

// EventProposal is the event type of a published proposal.
const EventProposal = "proposal.ranked"

// Publisher emits ranked proposals.
type Publisher interface {
	Publish(ctx context.Context, runID string, proposals []models.Proposal) error
	Close() error
}

// ProposalEvent is the message envelope for one proposal.
type ProposalEvent struct {
	EventType   string          `json:"event_type"`
	RunID       string          `json:"run_id"`
	Version     string          `json:"engine_version"`
	DedupeKey   string          `json:"dedupe_key"`
	Rank        int             `json:"rank"`
	PublishedAt time.Time       `json:"published_at"`
	Proposal    models.Proposal `json:"proposal"`
}

// KafkaPublisher writes one message per proposal, keyed by the proposal's
// dedupe key so a structure always lands on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	version  string
	logger   zerolog.Logger
	metrics  *metrics.Registry
	now      func() time.Time
}

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *KafkaPublisher) { p.logger = l }
}

// WithMetrics counts publish results on m.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *KafkaPublisher) { p.metrics = m }
}

// WithVersion stamps events with the engine version.
func WithVersion(v string) Option {
	return func(p *KafkaPublisher) { p.version = v }
}

// WithClock overrides the publish timestamp clock.
func WithClock(now func() time.Time) Option {
	return func(p *KafkaPublisher) { p.now = now }
}

// ProducerConfig returns the sarama configuration used for publishing.
func ProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Version = sarama.V2_8_0_0
	return config
}

// NewKafkaPublisher connects a synchronous producer to brokers.
func NewKafkaPublisher(brokers []string, topic string, opts ...Option) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, ProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, topic, opts...), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		version:  "dev",
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends every proposal. All proposals are attempted; the first
// failure is returned.
func (p *KafkaPublisher) Publish(ctx context.Context, runID string, proposals []models.Proposal) error {
	var firstErr error
	for i := range proposals {
		if err := ctx.Err(); err != nil {
			return err
		}

		prop := proposals[i]
		key := analytics.DedupeKey(&prop)
		event := ProposalEvent{
			EventType:   EventProposal,
			RunID:       runID,
			Version:     p.version,
			DedupeKey:   key,
			Rank:        i + 1,
			PublishedAt: p.now().UTC(),
			Proposal:    prop,
		}
		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshaling proposal event: %w", err)
		}

		msg := &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("event_type"), Value: []byte(EventProposal)},
			},
		}

		partition, offset, err := p.producer.SendMessage(msg)
		p.metrics.Publish(err == nil)
		if err != nil {
			p.logger.Error().Err(err).Str("symbol", prop.Symbol).Str("strategy", string(prop.Strategy)).Msg("failed to publish proposal")
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s %s: %v", apperrors.ErrPublishFailed, prop.Symbol, prop.Strategy, err)
			}
			continue
		}
		p.logger.Debug().
			Str("symbol", prop.Symbol).
			Int32("partition", partition).
			Int64("offset", offset).
			Msg("proposal published")
	}
	return firstErr
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher writes proposals to the log. Used when Kafka is disabled.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs each proposal.
func (p *LogPublisher) Publish(_ context.Context, runID string, proposals []models.Proposal) error {
	logger := p.logger.With().Str("run_id", runID).Logger()
	for i := range proposals {
		logging.LogProposal(logger, &proposals[i])
	}
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error {
	return nil
}
