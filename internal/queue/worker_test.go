package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	config "postqueue/configs"
	"postqueue/internal/models"
	"postqueue/internal/publisher"
)

type fakeTracker struct {
	entryID  int64
	claimed  bool
	claimErr error
	calls    int
}

func (f *fakeTracker) Claim(ctx context.Context, postID int64, platform string, scheduledAt time.Time, tolerance time.Duration) (int64, bool, error) {
	f.calls++
	return f.entryID, f.claimed, f.claimErr
}

type fakeExecutor struct {
	err      error
	executed []*models.DueEntry
}

func (f *fakeExecutor) ExecuteEntry(ctx context.Context, due *models.DueEntry) error {
	f.executed = append(f.executed, due)
	return f.err
}

func publishTask(t *testing.T) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(PublishEntryPayload{
		EntryID:     5,
		PostID:      9,
		UserID:      2,
		Platform:    models.PlatformInstagram,
		ScheduledAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(TaskTypePublishEntry, payload)
}

func newTestWorker(tracker Tracker, executor Executor) *Worker {
	return NewWorker(config.Config{ClaimTolerance: time.Minute}, tracker, executor)
}

func TestHandleSuccess(t *testing.T) {
	tracker := &fakeTracker{entryID: 5, claimed: true}
	executor := &fakeExecutor{}

	err := newTestWorker(tracker, executor).HandlePublishEntryTask(context.Background(), publishTask(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(executor.executed) != 1 || executor.executed[0].EntryID != 5 {
		t.Fatalf("expected claimed entry to be executed, got %v", executor.executed)
	}
}

func TestHandleClaimMissCompletesJob(t *testing.T) {
	tracker := &fakeTracker{claimed: false}
	executor := &fakeExecutor{}

	err := newTestWorker(tracker, executor).HandlePublishEntryTask(context.Background(), publishTask(t))
	if err != nil {
		t.Fatalf("claim miss must complete the job, got %v", err)
	}
	if len(executor.executed) != 0 {
		t.Fatalf("claim miss must not execute the entry")
	}
}

func TestHandleClaimErrorRetries(t *testing.T) {
	tracker := &fakeTracker{claimErr: errors.New("db down")}
	executor := &fakeExecutor{}

	err := newTestWorker(tracker, executor).HandlePublishEntryTask(context.Background(), publishTask(t))
	if err == nil {
		t.Fatalf("claim errors should surface so asynq retries")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("claim errors are retryable, got SkipRetry")
	}
}

func TestHandleTerminalErrorSkipsRetry(t *testing.T) {
	tracker := &fakeTracker{entryID: 5, claimed: true}
	executor := &fakeExecutor{err: publisher.NewError(publisher.KindPermissionDenied, "token revoked")}

	err := newTestWorker(tracker, executor).HandlePublishEntryTask(context.Background(), publishTask(t))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("terminal publish errors must not be retried, got %v", err)
	}
}

func TestHandleTransientErrorRetries(t *testing.T) {
	tracker := &fakeTracker{entryID: 5, claimed: true}
	executor := &fakeExecutor{err: publisher.NewError(publisher.KindRateLimited, "slow down")}

	err := newTestWorker(tracker, executor).HandlePublishEntryTask(context.Background(), publishTask(t))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("rate limits should go back to asynq for retry, got %v", err)
	}
}

func TestHandleBadPayloadSkipsRetry(t *testing.T) {
	tracker := &fakeTracker{}
	executor := &fakeExecutor{}
	task := asynq.NewTask(TaskTypePublishEntry, []byte("not json"))

	err := newTestWorker(tracker, executor).HandlePublishEntryTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("an undecodable payload can never succeed, got %v", err)
	}
	if tracker.calls != 0 {
		t.Fatalf("bad payload must not reach the store")
	}
}

func TestBackoffWithJitter(t *testing.T) {
	rand.Seed(1)
	base := 30 * time.Second
	max := 10 * time.Minute

	b1 := backoffWithJitter(base, max, 1)
	if b1 < base/2 || b1 > max {
		t.Fatalf("backoff out of range: %s", b1)
	}

	b6 := backoffWithJitter(base, max, 6)
	if b6 < max/2 || b6 > max {
		t.Fatalf("backoff should cap near max, got %s", b6)
	}
}
