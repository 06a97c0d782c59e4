package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenchat/haven/internal/chat"
	"github.com/havenchat/haven/internal/storage"
)

// JobStore abstracts the job queue and turn journal operations.
type JobStore interface {
	ClaimNextJob(jobType string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	SaveTurn(t storage.TurnRecord) error
}

// Worker drains journal_turn jobs from the SQLite job queue and writes the
// recorded turns to the journal table. Turn journaling is off the request
// path on purpose; the worker absorbs write latency and retries.
type Worker struct {
	store  JobStore
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, poll: pollInterval, logger: logger}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("journal worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single journal_turn job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(chat.JournalJobType)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(job); err != nil {
		w.logger.Warn("journal job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(job *storage.Job) error {
	var payload chat.JournalPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	rec := storage.TurnRecord{
		ID:          payload.TurnID,
		UserID:      payload.UserID,
		UserMessage: payload.UserMessage,
		Response:    payload.Response,
		Sensitive:   payload.Sensitive,
		CreatedAt:   payload.CreatedAt,
	}
	if err := w.store.SaveTurn(rec); err != nil {
		return fmt.Errorf("saving turn %s: %w", payload.TurnID, err)
	}

	w.logger.Debug("turn journaled", "turn_id", payload.TurnID, "user_id", payload.UserID)
	return nil
}
