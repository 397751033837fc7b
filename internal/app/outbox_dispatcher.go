package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/avsbank/banking-service/internal/store"
	"github.com/avsbank/banking-service/pkg/rabbitmq"
)

const (
	defaultBatchSize = 50
	defaultLease     = 2 * time.Minute
	maxRetryDelay    = 5 * time.Minute
)

// PublisherFactory opens a broker connection on demand.
type PublisherFactory func() (rabbitmq.Publisher, error)

// OutboxDispatcher drains the event outbox into the message broker.
type OutboxDispatcher struct {
	repo         store.OutboxRepository
	newPublisher PublisherFactory
	publisher    rabbitmq.Publisher
	batchSize    int
	lease        time.Duration
	logger       *slog.Logger
}

func NewOutboxDispatcher(repo store.OutboxRepository, newPublisher PublisherFactory, batchSize int, logger *slog.Logger) *OutboxDispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OutboxDispatcher{
		repo:         repo,
		newPublisher: newPublisher,
		batchSize:    batchSize,
		lease:        defaultLease,
		logger:       logger,
	}
}

// FlushOnce claims one batch and publishes it. Failed messages are rescheduled
// with exponential backoff. It returns the number of messages published.
func (d *OutboxDispatcher) FlushOnce(ctx context.Context) (int, error) {
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, d.lease)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelay(message.Attempts)
			d.logger.Warn("outbox publish failed", "id", message.ID, "routing_key", message.RoutingKey, "attempts", message.Attempts, "retry_after", retryAfter, "error", err)
			if markErr := d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to reschedule outbox message", "id", message.ID, "error", markErr)
			}
			continue
		}
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			d.logger.Error("failed to mark outbox message as published", "id", message.ID, "error", err)
			continue
		}
		published++
	}
	return published, nil
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.publisher == nil {
		publisher, err := d.newPublisher()
		if err != nil {
			return err
		}
		d.publisher = publisher
	}

	if err := d.publisher.Publish(ctx, message.Exchange, message.RoutingKey, json.RawMessage(message.Payload)); err != nil {
		d.Close()
		return err
	}
	return nil
}

// Close releases the broker connection, if any.
func (d *OutboxDispatcher) Close() {
	if d.publisher != nil {
		d.publisher.Close()
		d.publisher = nil
	}
}

// retryDelay doubles per attempt, starting at 1s and capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return time.Second
	}
	return min(time.Duration(1<<min(attempt, 8))*time.Second, maxRetryDelay)
}
