package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rcn123/rpg-lobby/internal/domain"
	"github.com/rcn123/rpg-lobby/internal/metrics"
	"github.com/rcn123/rpg-lobby/internal/repository"
	"github.com/rcn123/rpg-lobby/pkg/kafka"
	"github.com/rcn123/rpg-lobby/pkg/logger"
	"github.com/rcn123/rpg-lobby/pkg/retry"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Start on a running worker
var ErrAlreadyRunning = errors.New("outbox worker already running")

// Publisher delivers one record to the broker
type Publisher interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// DeadLetterSink receives messages that exhausted their retries
type DeadLetterSink interface {
	Send(ctx context.Context, msg *retry.DeadLetter) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to fetch in each poll
	BatchSize int
	// RetryInterval is the interval between retrying failed messages
	RetryInterval time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// CleanupRetentionDays is the number of days to retain published messages
	CleanupRetentionDays int
	// PublishPolicy bounds the in-process retries of a single publish
	PublishPolicy retry.Policy
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:         100 * time.Millisecond,
		BatchSize:            100,
		RetryInterval:        5 * time.Second,
		CleanupInterval:      time.Hour,
		CleanupRetentionDays: 7,
		PublishPolicy:        retry.DefaultPolicy(),
	}
}

func (c *OutboxWorkerConfig) applyDefaults() {
	d := DefaultOutboxWorkerConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.CleanupRetentionDays <= 0 {
		c.CleanupRetentionDays = d.CleanupRetentionDays
	}
	if c.PublishPolicy.Attempts <= 0 {
		c.PublishPolicy = d.PublishPolicy
	}
}

// OutboxWorker relays session and participation events from the outbox
// table to the broker. Messages of one session keep their order because
// each batch is read in creation order and published sequentially.
type OutboxWorker struct {
	outboxRepo repository.OutboxRepository
	publisher  Publisher
	deadLetter DeadLetterSink
	config     *OutboxWorkerConfig
	log        *logger.Logger
	now        func() time.Time
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewOutboxWorker creates a new outbox worker. deadLetter may be nil.
func NewOutboxWorker(
	outboxRepo repository.OutboxRepository,
	publisher Publisher,
	deadLetter DeadLetterSink,
	config *OutboxWorkerConfig,
) *OutboxWorker {
	if config == nil {
		config = DefaultOutboxWorkerConfig()
	}
	config.applyDefaults()

	return &OutboxWorker{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		deadLetter: deadLetter,
		config:     config,
		log:        logger.Get().With(zap.String("component", "outbox_worker")),
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the pending poller, the failed retrier and the cleanup loop
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting outbox worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(3)
	go w.loop(ctx, w.config.PollInterval, w.ProcessPending)
	go w.loop(ctx, w.config.RetryInterval, w.ProcessFailed)
	go w.loop(ctx, w.config.CleanupInterval, w.Cleanup)

	return nil
}

// Stop stops the worker and waits for in-flight batches
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("outbox worker stopped")
}

// IsRunning reports whether the worker has been started
func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *OutboxWorker) loop(ctx context.Context, every time.Duration, fn func(ctx context.Context)) {
	defer w.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessPending publishes one batch of pending messages
func (w *OutboxWorker) ProcessPending(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to get pending messages", zap.Error(err))
		return
	}
	w.relay(ctx, messages)
}

// ProcessFailed retries one batch of failed messages that have retries left
func (w *OutboxWorker) ProcessFailed(ctx context.Context) {
	messages, err := w.outboxRepo.GetFailedMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to get failed messages", zap.Error(err))
		return
	}
	w.relay(ctx, messages)
}

// Cleanup deletes published messages past the retention period
func (w *OutboxWorker) Cleanup(ctx context.Context) {
	deleted, err := w.outboxRepo.DeletePublished(ctx, w.config.CleanupRetentionDays)
	if err != nil {
		w.log.Error("failed to clean up published messages", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.log.Info("cleaned up published messages", zap.Int64("deleted", deleted))
	}
}

func (w *OutboxWorker) relay(ctx context.Context, messages []*domain.OutboxMessage) {
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		w.relayOne(ctx, msg)
	}
}

func (w *OutboxWorker) relayOne(ctx context.Context, msg *domain.OutboxMessage) {
	log := w.log.With(
		zap.String("message_id", msg.ID),
		zap.String("event_type", msg.EventType),
		zap.String("aggregate_id", msg.AggregateID),
	)

	_, err := retry.Do(ctx, w.config.PublishPolicy, func(ctx context.Context) error {
		return w.publisher.Produce(ctx, toKafkaMessage(msg))
	}, func(attempt int, err error) {
		log.Debug("publish attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	})

	if err == nil {
		if markErr := w.outboxRepo.MarkAsPublished(ctx, msg.ID); markErr != nil {
			log.Error("failed to mark message as published", zap.Error(markErr))
			return
		}
		metrics.RecordOutboxPublished(ctx, msg.EventType, w.now().Sub(msg.CreatedAt).Seconds())
		return
	}

	metrics.RecordOutboxFailed(ctx, msg.EventType)
	log.Warn("failed to publish message",
		zap.Int("retry_count", msg.RetryCount),
		zap.Int("max_retries", msg.MaxRetries),
		zap.Error(err),
	)
	if markErr := w.outboxRepo.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
		log.Error("failed to mark message as failed", zap.Error(markErr))
		return
	}

	// this failure used up the last retry
	if msg.RetryCount+1 >= msg.MaxRetries {
		w.sendDeadLetter(ctx, msg, err, log)
	}
}

func (w *OutboxWorker) sendDeadLetter(ctx context.Context, msg *domain.OutboxMessage, cause error, log *logger.Logger) {
	if w.deadLetter == nil {
		log.Error("message exhausted its retries")
		return
	}
	dl := &retry.DeadLetter{
		ID:            msg.ID,
		OriginalTopic: msg.Topic,
		Key:           msg.PartitionKey,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Headers:       headersFor(msg),
		Error:         cause.Error(),
		Attempts:      msg.RetryCount + 1,
		CreatedAt:     msg.CreatedAt,
	}
	if err := w.deadLetter.Send(ctx, dl); err != nil {
		log.Error("failed to send dead letter", zap.Error(err))
		return
	}
	log.Warn("message moved to dead letter topic")
}

func headersFor(msg *domain.OutboxMessage) map[string]string {
	return map[string]string{
		"event_type":     msg.EventType,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"message_id":     msg.ID,
		"content_type":   "application/json",
		"source":         "outbox-relay",
	}
}

func toKafkaMessage(msg *domain.OutboxMessage) *kafka.Message {
	return &kafka.Message{
		Topic:     msg.Topic,
		Key:       []byte(msg.PartitionKey),
		Value:     msg.Payload,
		Headers:   headersFor(msg),
		Timestamp: msg.CreatedAt,
	}
}
