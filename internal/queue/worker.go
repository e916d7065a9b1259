package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hibiken/asynq"
	config "postqueue/configs"
	"postqueue/internal/models"
	"postqueue/internal/publisher"
	"postqueue/internal/telemetry"
)

// Tracker is the claim surface the worker needs. Claim matches on the
// identity carried in the payload, falling back to the nearest entry within
// the tolerance window when the stored timestamp has drifted.
type Tracker interface {
	Claim(ctx context.Context, postID int64, platform string, scheduledAt time.Time, tolerance time.Duration) (int64, bool, error)
}

// Executor runs one claimed entry to completion and settles it.
type Executor interface {
	ExecuteEntry(ctx context.Context, due *models.DueEntry) error
}

type Worker struct {
	cfg      config.Config
	tracker  Tracker
	executor Executor
}

func NewWorker(cfg config.Config, tracker Tracker, executor Executor) *Worker {
	return &Worker{
		cfg:      cfg,
		tracker:  tracker,
		executor: executor,
	}
}

// HandlePublishEntryTask claims and executes one scheduled entry. A claim
// miss means the poll scheduler or a cancellation got there first; the job
// completes without publishing. Errors the publisher marks terminal are
// wrapped with asynq.SkipRetry so the queue does not burn retries on them.
func (w *Worker) HandlePublishEntryTask(ctx context.Context, t *asynq.Task) error {
	var payload PublishEntryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal publish payload: %v: %w", err, asynq.SkipRetry)
	}

	entryID, claimed, err := w.tracker.Claim(ctx, payload.PostID, payload.Platform, payload.ScheduledAt, w.cfg.ClaimTolerance)
	if err != nil {
		// Store failure before the claim; the entry is untouched and the
		// retry or the poll scheduler will pick it up.
		slog.Info(fmt.Sprintf("claim failed for post %d on %s: %v", payload.PostID, payload.Platform, err))
		return err
	}
	if !claimed {
		telemetry.ClaimMisses.Inc()
		return nil
	}

	due := &models.DueEntry{
		EntryID:     entryID,
		PostID:      payload.PostID,
		UserID:      payload.UserID,
		Platform:    payload.Platform,
		ScheduledAt: payload.ScheduledAt,
	}

	err = w.executor.ExecuteEntry(ctx, due)
	if err == nil {
		return nil
	}
	if !publisher.Retryable(err) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// RetryDelay spaces queue retries exponentially with jitter so a struggling
// platform API is not hammered on a fixed cadence.
func (w *Worker) RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	return backoffWithJitter(30*time.Second, 10*time.Minute, n)
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt && backoff < max; i++ {
		backoff *= 2
	}
	if backoff > max {
		backoff = max
	}
	jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
	return backoff/2 + jitter
}
