package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"postqueue/internal/models"
)

type fakeTracker struct {
	due       []*models.DueEntry
	listErr   error
	unclaimed map[int64]bool
	claimErr  map[int64]error
	claims    []int64
}

func (f *fakeTracker) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DueEntry, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeTracker) ClaimByID(ctx context.Context, entryID int64) (bool, error) {
	f.claims = append(f.claims, entryID)
	if err := f.claimErr[entryID]; err != nil {
		return false, err
	}
	return !f.unclaimed[entryID], nil
}

type fakeExecutor struct {
	executed []int64
	fail     map[int64]error
}

func (f *fakeExecutor) ExecuteEntry(ctx context.Context, due *models.DueEntry) error {
	f.executed = append(f.executed, due.EntryID)
	return f.fail[due.EntryID]
}

func newTestPoller(tracker *fakeTracker, executor *fakeExecutor) *Poller {
	return &Poller{
		interval:  time.Second,
		batchSize: 10,
		tracker:   tracker,
		executor:  executor,
	}
}

func dueEntry(id int64) *models.DueEntry {
	return &models.DueEntry{
		EntryID:     id,
		PostID:      100 + id,
		UserID:      1,
		Platform:    models.PlatformFacebook,
		ScheduledAt: time.Now().Add(-time.Minute),
	}
}

func TestTickExecutesClaimedEntries(t *testing.T) {
	tracker := &fakeTracker{due: []*models.DueEntry{dueEntry(1), dueEntry(2)}}
	executor := &fakeExecutor{}

	newTestPoller(tracker, executor).Tick()

	if len(executor.executed) != 2 {
		t.Fatalf("expected 2 executions, got %v", executor.executed)
	}
}

func TestTickSkipsLostClaims(t *testing.T) {
	tracker := &fakeTracker{
		due:       []*models.DueEntry{dueEntry(1), dueEntry(2), dueEntry(3)},
		unclaimed: map[int64]bool{2: true},
	}
	executor := &fakeExecutor{}

	newTestPoller(tracker, executor).Tick()

	if len(executor.executed) != 2 {
		t.Fatalf("expected entry 2 to be skipped, executed %v", executor.executed)
	}
	for _, id := range executor.executed {
		if id == 2 {
			t.Fatalf("lost claim must not be executed")
		}
	}
}

func TestTickOneFailureDoesNotAbortBatch(t *testing.T) {
	tracker := &fakeTracker{due: []*models.DueEntry{dueEntry(1), dueEntry(2), dueEntry(3)}}
	executor := &fakeExecutor{fail: map[int64]error{1: errors.New("rate limited")}}

	newTestPoller(tracker, executor).Tick()

	if len(executor.executed) != 3 {
		t.Fatalf("a failing entry should not stop the batch, executed %v", executor.executed)
	}
}

func TestTickClaimErrorSkipsEntry(t *testing.T) {
	tracker := &fakeTracker{
		due:      []*models.DueEntry{dueEntry(1), dueEntry(2)},
		claimErr: map[int64]error{1: errors.New("db down")},
	}
	executor := &fakeExecutor{}

	newTestPoller(tracker, executor).Tick()

	if len(executor.executed) != 1 || executor.executed[0] != 2 {
		t.Fatalf("expected only entry 2 executed, got %v", executor.executed)
	}
}

func TestTickListErrorDoesNothing(t *testing.T) {
	tracker := &fakeTracker{listErr: errors.New("db down")}
	executor := &fakeExecutor{}

	newTestPoller(tracker, executor).Tick()

	if len(executor.executed) != 0 {
		t.Fatalf("nothing should execute when discovery fails")
	}
}

func TestTickHonorsBatchSize(t *testing.T) {
	tracker := &fakeTracker{due: []*models.DueEntry{dueEntry(1), dueEntry(2), dueEntry(3)}}
	executor := &fakeExecutor{}

	p := newTestPoller(tracker, executor)
	p.batchSize = 2
	p.Tick()

	if len(executor.executed) != 2 {
		t.Fatalf("expected batch of 2, executed %v", executor.executed)
	}
}
