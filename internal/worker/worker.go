// Package worker runs the background email delivery loop.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/internal/telemetry"
	"github.com/tender-hub/backend/pkg/queue"
)

// ErrPermanent marks a job that will never succeed (bad payload, unknown template). It is logged
// and dropped instead of retried.
var ErrPermanent = errors.New("permanent job failure")

// JobQueue is the part of *queue.Queue the processor uses.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration, keys ...string) (*queue.Job, string, error)
	Retry(ctx context.Context, key string, job *queue.Job, cause error) (bool, error)
}

// Renderer turns a template name and variables into a subject and HTML body.
type Renderer interface {
	Render(name string, vars map[string]string) (subject, body string, err error)
}

// EmailLogWriter records delivery attempts.
type EmailLogWriter interface {
	Create(ctx context.Context, el *models.EmailLog) error
}

// EmailProcessor processes email jobs: render, send, log, retry on error.
type EmailProcessor struct {
	queue       JobQueue
	templates   Renderer
	sender      notifications.Sender
	logs        EmailLogWriter
	backoff     time.Duration
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(q JobQueue, templates Renderer, sender notifications.Sender, logs EmailLogWriter, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		queue:       q,
		templates:   templates,
		sender:      sender,
		logs:        logs,
		backoff:     queue.RetryBackoff,
		pollTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// Process executes one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeEmail {
		return fmt.Errorf("%w: unknown job type %s", ErrPermanent, job.Type)
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", ErrPermanent, err)
	}

	entry := &models.EmailLog{
		Template:       payload.Template,
		RecipientEmail: payload.Recipient,
		Attempt:        job.Attempt + 1,
	}

	subject, body, err := p.templates.Render(payload.Template, payload.Variables)
	if err != nil {
		p.writeLog(ctx, entry, err)
		return fmt.Errorf("%w: render: %v", ErrPermanent, err)
	}
	entry.Subject = subject

	if err := p.sender.Send(ctx, notifications.Message{To: payload.Recipient, Subject: subject, HTMLBody: body}); err != nil {
		p.writeLog(ctx, entry, err)
		return err
	}
	p.writeLog(ctx, entry, nil)
	p.logger.Info("email sent",
		zap.String("template", payload.Template),
		zap.String("intent_id", payload.IntentID.String()),
		zap.Int("attempt", entry.Attempt),
	)
	return nil
}

func (p *EmailProcessor) writeLog(ctx context.Context, entry *models.EmailLog, sendErr error) {
	if sendErr != nil {
		entry.Status = models.EmailLogStatusFailed
		entry.ErrorMessage = sendErr.Error()
	} else {
		now := time.Now().UTC()
		entry.Status = models.EmailLogStatusSent
		entry.SentAt = &now
	}
	telemetry.EmailDeliveriesTotal.WithLabelValues(entry.Template, entry.Status).Inc()
	if err := p.logs.Create(ctx, entry); err != nil {
		p.logger.Error("write email log failed", zap.Error(err), zap.String("template", entry.Template))
	}
}

// Run starts the worker loop until ctx is done.
func (p *EmailProcessor) Run(ctx context.Context) {
	p.logger.Info("email worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}
		if failed := p.processNext(ctx); failed {
			p.sleep(ctx, p.backoff)
		}
	}
}

// processNext handles at most one job. It reports whether the loop should back off.
func (p *EmailProcessor) processNext(ctx context.Context) bool {
	job, key, err := p.queue.Dequeue(ctx, p.pollTimeout, queue.QueueEmails)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("dequeue error", zap.Error(err))
		}
		return true
	}
	if job == nil {
		return false
	}

	p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	err = p.Process(ctx, job)
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		p.logger.Error("job dropped", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
	dead, reErr := p.queue.Retry(ctx, key, job, err)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
	}
	if dead {
		telemetry.EmailDeliveriesTotal.WithLabelValues(templateOf(job), "dead_lettered").Inc()
	}
	return true
}

func templateOf(job *queue.Job) string {
	var payload queue.EmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return "unknown"
	}
	return payload.Template
}

func (p *EmailProcessor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
