package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/telemetry"
	"github.com/tender-hub/backend/pkg/database"
	"github.com/tender-hub/backend/pkg/queue"
)

// Enqueuer pushes email jobs onto the queue. Satisfied by *queue.Queue.
type Enqueuer interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Relay moves pending outbox rows onto the email queue.
type Relay struct {
	db        database.TxBeginner
	queue     Enqueuer
	batchSize int
	interval  time.Duration
	logger    *zap.Logger
}

// NewRelay creates an outbox relay.
func NewRelay(db database.TxBeginner, q Enqueuer, batchSize int, interval time.Duration, logger *zap.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{db: db, queue: q, batchSize: batchSize, interval: interval, logger: logger}
}

// Run relays batches every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			for {
				n, err := r.RunOnce(ctx)
				if err != nil {
					r.logger.Error("outbox relay", zap.Error(err))
					break
				}
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// RunOnce relays one batch and returns how many rows were dispatched. Rows pushed before a queue
// failure are still marked dispatched; the rest stay pending for the next tick.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	var (
		dispatched int
		pushErr    error
	)
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		repo := NewOutboxRepository(tx)
		intents, err := repo.ClaimPending(ctx, r.batchSize)
		if err != nil {
			return err
		}
		done := make([]uuid.UUID, 0, len(intents))
		for _, in := range intents {
			payload := queue.EmailPayload{
				IntentID:  in.ID,
				Template:  in.Template,
				Recipient: in.Recipient,
				Variables: in.Variables,
			}
			if err := r.queue.EnqueueEmail(ctx, payload); err != nil {
				pushErr = err
				break
			}
			done = append(done, in.ID)
		}
		if err := repo.MarkDispatched(ctx, done); err != nil {
			return err
		}
		dispatched = len(done)
		return nil
	})
	if err != nil {
		return 0, err
	}
	telemetry.OutboxDispatchedTotal.Add(float64(dispatched))
	if dispatched > 0 {
		r.logger.Debug("outbox batch relayed", zap.Int("count", dispatched))
	}
	return dispatched, pushErr
}
