// Package outbox queues chat replies in SQLite and delivers them in the
// background, retrying failed sends with backoff.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/chathub/internal/messenger"
	"github.com/kalambet/chathub/internal/storage"
)

// JobType is the job type used for queued replies.
const JobType = "send_reply"

// JobStore abstracts the job queue and delivery log.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	DiscardJob(id string, errMsg string) error
	SaveDelivery(d storage.Delivery) error
}

type payload struct {
	To        string `json:"to"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"`
}

// Enqueue queues body for delivery to `to`. messageID links the delivery to
// the inbound message it answers and may be empty.
func Enqueue(store JobStore, to, body, messageID string) (string, error) {
	data, err := json.Marshal(payload{To: to, Body: body, MessageID: messageID})
	if err != nil {
		return "", fmt.Errorf("encoding reply: %w", err)
	}
	id := uuid.NewString()
	if err := store.EnqueueJob(storage.Job{ID: id, Type: JobType, PayloadJSON: string(data)}); err != nil {
		return "", fmt.Errorf("queueing reply: %w", err)
	}
	return id, nil
}

// Worker delivers queued replies through a Messenger.
type Worker struct {
	store  JobStore
	sender messenger.Messenger
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, sender messenger.Messenger, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		sender: sender,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls for replies until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		did, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("outbox iteration failed", "error", err)
		}
		if did {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.poll):
		}
	}
}

var errUndeliverable = errors.New("undeliverable reply")

// RunOnce claims and sends one queued reply. It reports whether a job was
// claimed, whatever the outcome of the send.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.deliver(ctx, job); err != nil {
		mark := w.store.FailJob
		if errors.Is(err, errUndeliverable) {
			mark = w.store.DiscardJob
		}
		w.logger.Warn("reply delivery failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := mark(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) deliver(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("%w: parsing payload: %v", errUndeliverable, err)
	}
	if p.To == "" {
		return fmt.Errorf("%w: no destination", errUndeliverable)
	}

	res := w.sender.SendText(ctx, p.To, p.Body)
	if err := w.store.SaveDelivery(storage.Delivery{
		ID:          uuid.NewString(),
		Kind:        storage.DeliveryReply,
		Ref:         p.MessageID,
		Destination: p.To,
		Body:        p.Body,
		OK:          res.OK,
		Detail:      res.Detail,
	}); err != nil {
		w.logger.Warn("recording delivery failed", "job_id", job.ID, "error", err)
	}
	if !res.OK {
		return errors.New(res.Detail)
	}
	w.logger.Debug("reply delivered", "job_id", job.ID, "to", p.To)
	return nil
}
