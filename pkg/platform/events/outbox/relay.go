// Package outbox relays committed registry events from the postgres outbox
// to Kafka. Events are produced strictly in sequence order and acked back to
// the store only after Kafka confirms them, so downstream consumers see the
// same order the registry committed.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"attestry/pkg/platform/events"
)

// Source is the unpublished side of the event store. MarkPublished acks the
// one event named by seq; the relay calls it only after the broker confirms
// that event.
type Source interface {
	ListUnpublished(ctx context.Context, limit int) ([]events.Event, error)
	MarkPublished(ctx context.Context, seq uint64) error
}

type Relay struct {
	source   Source
	client   *kgo.Client
	topic    string
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

type Option func(*Relay)

// WithPollInterval overrides the default 500ms outbox poll.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// WithBatchSize caps how many events one poll drains.
func WithBatchSize(n int) Option {
	return func(r *Relay) { r.batch = n }
}

// New builds a relay producing to topic. The kgo client should be configured
// with kgo.DefaultProduceTopic or left topic-less; the relay sets the topic
// per record.
func New(source Source, client *kgo.Client, topic string, logger *slog.Logger, opts ...Option) *Relay {
	r := &Relay{
		source:   source,
		client:   client,
		topic:    topic,
		logger:   logger,
		interval: 500 * time.Millisecond,
		batch:    100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureTopic creates the event topic if missing. Safe to call on every boot.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", topic, res.Err)
		}
	}
	return nil
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				// Transient broker/store failures must not kill the relay;
				// unacked rows are retried next tick.
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (r *Relay) drainOnce(ctx context.Context) error {
	pending, err := r.source.ListUnpublished(ctx, r.batch)
	if err != nil {
		return fmt.Errorf("list unpublished: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	for _, event := range pending {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", event.Seq, err)
		}
		record := &kgo.Record{
			Topic: r.topic,
			// Keying by fingerprint keeps per-document ordering inside a
			// partition; role events share the actor key.
			Key:   recordKey(event),
			Value: payload,
		}
		// Synchronous produce per event keeps the seq order guarantee.
		if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce event %d: %w", event.Seq, err)
		}
		if err := r.source.MarkPublished(ctx, event.Seq); err != nil {
			return fmt.Errorf("ack event %d: %w", event.Seq, err)
		}
	}
	return nil
}

func recordKey(event events.Event) []byte {
	if event.Fingerprint != "" {
		return []byte(event.Fingerprint)
	}
	if event.Subject != "" {
		return []byte(event.Subject)
	}
	return []byte(event.Actor)
}
