package service

import (
	"context"
	"errors"
	"testing"

	"postqueue/internal/models"
	"postqueue/internal/publisher"
	"postqueue/internal/repository"
)

// Fakes embed the repository interfaces so only the methods the publish
// service touches need real implementations.

type fakePostRepo struct {
	repository.PostRepository
	post  *models.Post
	err   error
	owned bool
}

func (f *fakePostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	return f.post, f.err
}

func (f *fakePostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return f.owned, nil
}

type fakeAccountRepo struct {
	repository.SocialAccountRepository
	account *models.SocialAccount
	err     error
}

func (f *fakeAccountRepo) GetForPublish(ctx context.Context, userID int64, platform string) (*models.SocialAccount, error) {
	return f.account, f.err
}

type fakeEntryTracker struct {
	repository.ScheduleEntryRepository
	settled   []*models.AttemptOutcome
	direct    []*models.AttemptOutcome
	settleErr error
}

func (f *fakeEntryTracker) Settle(ctx context.Context, entryID, postID int64, platform string, outcome *models.AttemptOutcome) error {
	f.settled = append(f.settled, outcome)
	return f.settleErr
}

func (f *fakeEntryTracker) RecordDirect(ctx context.Context, postID int64, platform string, outcome *models.AttemptOutcome) error {
	f.direct = append(f.direct, outcome)
	return nil
}

type fakePlatformPublisher struct {
	externalID string
	err        error
}

func (f *fakePlatformPublisher) Publish(ctx context.Context, post *models.Post, platform string, account *models.SocialAccount) (string, error) {
	return f.externalID, f.err
}

func testDue() *models.DueEntry {
	return &models.DueEntry{EntryID: 5, PostID: 9, UserID: 2, Platform: models.PlatformFacebook}
}

func TestExecuteEntrySettlesPosted(t *testing.T) {
	tracker := &fakeEntryTracker{}
	s := NewPublishService(
		&fakePostRepo{post: &models.Post{ID: 9, UserID: 2}},
		&fakeAccountRepo{account: &models.SocialAccount{AccessToken: "tok"}},
		tracker,
		&fakePlatformPublisher{externalID: "fb_123"},
	)

	if err := s.ExecuteEntry(context.Background(), testDue()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tracker.settled) != 1 {
		t.Fatalf("expected exactly one settle, got %d", len(tracker.settled))
	}
	outcome := tracker.settled[0]
	if outcome.Status != models.AttemptStatusPosted || outcome.ExternalID != "fb_123" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestExecuteEntrySettlesFailedAndReturnsError(t *testing.T) {
	tracker := &fakeEntryTracker{}
	pubErr := publisher.NewError(publisher.KindRateLimited, "slow down")
	s := NewPublishService(
		&fakePostRepo{post: &models.Post{ID: 9, UserID: 2}},
		&fakeAccountRepo{account: &models.SocialAccount{AccessToken: "tok"}},
		tracker,
		&fakePlatformPublisher{err: pubErr},
	)

	err := s.ExecuteEntry(context.Background(), testDue())
	if publisher.KindOf(err) != publisher.KindRateLimited {
		t.Fatalf("the raw publish error must surface, got %v", err)
	}

	if len(tracker.settled) != 1 {
		t.Fatalf("a failed attempt must still settle")
	}
	outcome := tracker.settled[0]
	if outcome.Status != models.AttemptStatusFailed || outcome.Message == "" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestExecuteEntryMissingPostSettlesFailed(t *testing.T) {
	tracker := &fakeEntryTracker{}
	s := NewPublishService(
		&fakePostRepo{post: nil},
		&fakeAccountRepo{},
		tracker,
		&fakePlatformPublisher{},
	)

	err := s.ExecuteEntry(context.Background(), testDue())
	if publisher.KindOf(err) != publisher.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if len(tracker.settled) != 1 || tracker.settled[0].Status != models.AttemptStatusFailed {
		t.Fatalf("a deleted post must settle the entry as failed")
	}
}

func TestExecuteEntrySettleErrorSurfaces(t *testing.T) {
	tracker := &fakeEntryTracker{settleErr: errors.New("db down")}
	s := NewPublishService(
		&fakePostRepo{post: &models.Post{ID: 9, UserID: 2}},
		&fakeAccountRepo{account: &models.SocialAccount{AccessToken: "tok"}},
		tracker,
		&fakePlatformPublisher{externalID: "fb_123"},
	)

	if err := s.ExecuteEntry(context.Background(), testDue()); err == nil {
		t.Fatalf("a settle failure must not be swallowed")
	}
}

func TestPublishNowRecordsAttempt(t *testing.T) {
	tracker := &fakeEntryTracker{}
	s := NewPublishService(
		&fakePostRepo{post: &models.Post{ID: 9, UserID: 2}, owned: true},
		&fakeAccountRepo{account: &models.SocialAccount{AccessToken: "tok"}},
		tracker,
		&fakePlatformPublisher{externalID: "ig_9"},
	)

	outcome, err := s.PublishNow(context.Background(), 2, 9, models.PlatformInstagram)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != models.AttemptStatusPosted || outcome.ExternalID != "ig_9" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(tracker.direct) != 1 {
		t.Fatalf("a direct publish must leave an attempt record")
	}
	if len(tracker.settled) != 0 {
		t.Fatalf("direct publishes have no schedule entry to settle")
	}
}

func TestPublishNowUnownedPost(t *testing.T) {
	tracker := &fakeEntryTracker{}
	s := NewPublishService(
		&fakePostRepo{owned: false},
		&fakeAccountRepo{},
		tracker,
		&fakePlatformPublisher{},
	)

	outcome, err := s.PublishNow(context.Background(), 2, 9, models.PlatformInstagram)
	if publisher.KindOf(err) != publisher.KindNotFound {
		t.Fatalf("expected not_found for an unowned post, got %v", err)
	}
	if outcome != nil {
		t.Fatalf("no outcome expected when the publish never ran")
	}
	if len(tracker.direct) != 0 {
		t.Fatalf("no attempt should be recorded for an unowned post")
	}
}
