package di

import (
	"context"
	"fmt"

	"github.com/rcn123/rpg-lobby/internal/worker"
	"github.com/rcn123/rpg-lobby/pkg/config"
	"github.com/rcn123/rpg-lobby/pkg/kafka"
	"github.com/rcn123/rpg-lobby/pkg/retry"
)

// Relay is an outbox worker together with the producer it owns
type Relay struct {
	Worker   *worker.OutboxWorker
	producer *kafka.Producer
}

// Close stops the worker and flushes the producer
func (r *Relay) Close() {
	r.Worker.Stop()
	r.producer.Close()
}

// NewRelay connects to the brokers and builds an outbox worker reading
// from store. The worker is not started.
func NewRelay(ctx context.Context, cfg *config.Config, store *Store, source string) (*Relay, error) {
	producer, err := kafka.NewProducer(ctx, kafka.DefaultProducerConfig(cfg.Kafka.Brokers, cfg.Kafka.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	deadLetters := retry.NewDeadLetterSender(producer, cfg.Outbox.DeadLetterSuffix, source)
	w := worker.NewOutboxWorker(store.Outbox, producer, deadLetters, &worker.OutboxWorkerConfig{
		PollInterval:         cfg.Outbox.PollInterval,
		BatchSize:            cfg.Outbox.BatchSize,
		RetryInterval:        cfg.Outbox.RetryInterval,
		CleanupInterval:      cfg.Outbox.CleanupInterval,
		CleanupRetentionDays: cfg.Outbox.CleanupRetentionDays,
	})

	return &Relay{Worker: w, producer: producer}, nil
}
