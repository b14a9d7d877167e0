// Package signal consumes provider activity events from Kafka and turns
// them into pending sync intents. The queue runner does the actual work;
// this package only records that work exists.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/coachsync/internal/observability"
)

// Reader exposes the minimal kafka.Reader interface needed by the consumer.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// IntentEnqueuer records a pending sync intent, deduplicating against
// intents already open for the same account and activity.
type IntentEnqueuer interface {
	Enqueue(ctx context.Context, accountID string, externalActivityID *int64) (bool, error)
}

// Event is an activity notification published when a provider reports a
// new or updated activity for a connected account.
type Event struct {
	AccountID          string    `json:"account_id"`
	Provider           string    `json:"provider"`
	ExternalActivityID *int64    `json:"external_activity_id,omitempty"`
	Aspect             string    `json:"aspect,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Option configures optional behaviour for the Consumer.
type Option func(*Consumer)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// Consumer pulls events from Kafka and enqueues sync intents.
type Consumer struct {
	reader  Reader
	intents IntentEnqueuer
	logger  *log.Logger
}

// NewConsumer constructs a Consumer with the provided reader and intent store.
func NewConsumer(reader Reader, intents IntentEnqueuer, opts ...Option) *Consumer {
	c := &Consumer{
		reader:  reader,
		intents: intents,
		logger:  log.New(log.Writer(), "[signal] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run starts a blocking loop that processes events until the context is
// cancelled. Malformed messages are committed so they cannot wedge the
// partition; enqueue failures leave the offset uncommitted for redelivery.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := decodeEvent(msg)
		if decodeErr != nil {
			c.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			observability.RecordSignalDecodeError(msg.Topic)
			if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
				c.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		created, err := c.intents.Enqueue(ctx, event.AccountID, event.ExternalActivityID)
		if err != nil {
			c.logger.Printf("enqueue error (account=%s): %v", event.AccountID, err)
			continue
		}
		if created {
			observability.RecordSignalEnqueued()
		}

		if commitErr := c.reader.CommitMessages(ctx, msg); commitErr != nil {
			c.logger.Printf("commit error: %v", commitErr)
		}
	}
}

func decodeEvent(msg kafka.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.AccountID == "" {
		return Event{}, errors.New("missing account_id")
	}
	return event, nil
}
