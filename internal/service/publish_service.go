package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"postqueue/internal/models"
	"postqueue/internal/publisher"
	"postqueue/internal/repository"
	"postqueue/internal/telemetry"
)

// PlatformPublisher is the adapter boundary the execution paths go through.
type PlatformPublisher interface {
	Publish(ctx context.Context, post *models.Post, platform string, account *models.SocialAccount) (string, error)
}

// PublishService is the shared execution path behind both the poll scheduler
// and the queue workers: re-fetch the live post and credentials, run the
// platform publish, and settle the outcome. The claim happened before we get
// here; every code path below MUST end in a settle so the entry never sticks
// in processing.
type PublishService interface {
	ExecuteEntry(ctx context.Context, due *models.DueEntry) error
	PublishNow(ctx context.Context, userID, postID int64, platform string) (*models.AttemptOutcome, error)
}

type publishService struct {
	pr      repository.PostRepository
	sa      repository.SocialAccountRepository
	tracker repository.ScheduleEntryRepository
	pub     PlatformPublisher
}

func NewPublishService(
	pr repository.PostRepository,
	sa repository.SocialAccountRepository,
	tracker repository.ScheduleEntryRepository,
	pub PlatformPublisher) PublishService {
	return &publishService{
		pr:      pr,
		sa:      sa,
		tracker: tracker,
		pub:     pub,
	}
}

// ExecuteEntry runs one claimed attempt to completion and settles it. The
// publish error (if any) is returned raw so the queue's retry machinery can
// decide what to do with it; the poll scheduler just logs it.
func (s *publishService) ExecuteEntry(ctx context.Context, due *models.DueEntry) error {
	externalID, pubErr := s.attempt(ctx, due)

	outcome := &models.AttemptOutcome{}
	if pubErr == nil {
		outcome.Status = models.AttemptStatusPosted
		outcome.ExternalID = externalID
		telemetry.PublishSuccess.Inc()
	} else {
		outcome.Status = models.AttemptStatusFailed
		outcome.Message = pubErr.Error()
		if cause := errors.Unwrap(pubErr); cause != nil {
			outcome.Details = cause.Error()
		}
		telemetry.PublishFailures.Inc()
	}

	if err := s.tracker.Settle(ctx, due.EntryID, due.PostID, due.Platform, outcome); err != nil {
		slog.Error(fmt.Sprintf("failed to settle entry %d: %v", due.EntryID, err))
		return err
	}

	return pubErr
}

func (s *publishService) attempt(ctx context.Context, due *models.DueEntry) (string, error) {
	post, err := s.pr.GetByID(ctx, due.PostID)
	if err != nil {
		return "", publisher.WrapError(publisher.KindTransientNetwork, "error fetching post", err)
	}
	if post == nil {
		return "", publisher.NewError(publisher.KindNotFound, fmt.Sprintf("post %d no longer exists", due.PostID))
	}

	account, err := s.sa.GetForPublish(ctx, post.UserID, due.Platform)
	if err != nil {
		return "", publisher.WrapError(publisher.KindTransientNetwork, "error fetching social account", err)
	}

	return s.pub.Publish(ctx, post, due.Platform, account)
}

// PublishNow is the immediate path: no schedule entry exists, so there is
// nothing to claim, but the attempt trail and publish summary get the same
// treatment as a scheduled run.
func (s *publishService) PublishNow(ctx context.Context, userID, postID int64, platform string) (*models.AttemptOutcome, error) {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, publisher.NewError(publisher.KindNotFound, fmt.Sprintf("post %d not found", postID))
	}

	externalID, pubErr := s.attempt(ctx, &models.DueEntry{PostID: postID, UserID: userID, Platform: platform})

	outcome := &models.AttemptOutcome{}
	if pubErr == nil {
		outcome.Status = models.AttemptStatusPosted
		outcome.ExternalID = externalID
		telemetry.PublishSuccess.Inc()
	} else {
		outcome.Status = models.AttemptStatusFailed
		outcome.Message = pubErr.Error()
		if cause := errors.Unwrap(pubErr); cause != nil {
			outcome.Details = cause.Error()
		}
		telemetry.PublishFailures.Inc()
	}

	if err := s.tracker.RecordDirect(ctx, postID, platform, outcome); err != nil {
		slog.Error(fmt.Sprintf("failed to record direct publish for post %d: %v", postID, err))
		return nil, err
	}

	return outcome, pubErr
}
