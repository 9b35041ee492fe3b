// Package outbox relays persisted events to the message queue. Events
// are written to MySQL in the same transaction as the state they
// describe and published asynchronously by the relay loop.
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/storage"
	"github.com/steph-grigors/ai-job-matcher/internal/storage/models"
)

const (
	defaultInterval    = 5 * time.Second
	defaultBatchSize   = 50
	defaultMaxAttempts = 5
)

// Relay polls pending outbox messages and publishes them.
type Relay struct {
	db          *storage.MySQL
	mq          storage.MessageQueue
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      zerolog.Logger
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize overrides how many messages one poll handles.
func WithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxAttempts overrides the publish attempt cap per message.
func WithMaxAttempts(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithRelayLogger sets a custom logger.
func WithRelayLogger(logger zerolog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

// NewRelay builds a relay over the given database and queue.
func NewRelay(db *storage.MySQL, mq storage.MessageQueue, options ...RelayOption) *Relay {
	r := &Relay{
		db:          db,
		mq:          mq,
		interval:    defaultInterval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		logger:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Start runs the relay loop until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("outbox relay started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			r.relayOnce(ctx)
		}
	}
}

// relayOnce publishes one batch of pending messages. Failures only touch
// the failing message; the rest of the batch proceeds.
func (r *Relay) relayOnce(ctx context.Context) {
	messages, err := r.db.FetchPendingOutbox(ctx, r.batchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("fetch pending outbox messages failed")
		return
	}
	if len(messages) == 0 {
		return
	}

	var sent, failed int
	for _, msg := range messages {
		if err := r.publish(ctx, &msg); err != nil {
			failed++
			if markErr := r.db.MarkOutboxFailed(ctx, msg.ID, err, r.maxAttempts); markErr != nil {
				r.logger.Error().Err(markErr).Uint64("message_id", msg.ID).Msg("mark outbox message failed errored")
			}
			continue
		}
		sent++
		if markErr := r.db.MarkOutboxSent(ctx, msg.ID); markErr != nil {
			// The message was published; a stale PENDING row means a
			// possible duplicate publish on the next poll. Consumers
			// must tolerate redelivery anyway.
			r.logger.Error().Err(markErr).Uint64("message_id", msg.ID).Msg("mark outbox message sent errored")
		}
	}

	r.logger.Debug().Int("sent", sent).Int("failed", failed).Msg("outbox batch relayed")
}

func (r *Relay) publish(ctx context.Context, msg *models.OutboxMessage) error {
	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.mq.PublishMessage(pubCtx, msg.Exchange, msg.RoutingKey, msg.Payload, true)
}
