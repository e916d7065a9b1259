package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postqueue/internal/models"
	"postqueue/internal/repository"
	"postqueue/internal/transfer"
)

const scheduleTimeLayout = "2006-01-02T15:04"

// EntryQueue is the durable job queue boundary. Available reports whether the
// backing store was reachable at startup; when it is not, entries stay
// pending and the poll scheduler is the only execution path.
type EntryQueue interface {
	Available() bool
	EnqueueEntry(ctx context.Context, due *models.DueEntry) (string, error)
	CancelJob(jobID string) error
}

type PostService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error)
	Update(ctx context.Context, userID int64, pu *transfer.PostUpdate) error
	List(ctx context.Context, userID int64) ([]*models.Post, error)
	Info(ctx context.Context, postID, userID int64) (*models.Post, error)
	Calendar(ctx context.Context, userID int64, from, to time.Time) ([]*models.ScheduleEntry, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db    *sql.DB
	pr    repository.PostRepository
	se    repository.ScheduleEntryRepository
	queue EntryQueue
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	se repository.ScheduleEntryRepository,
	queue EntryQueue) PostService {
	return &postService{
		db:    db,
		pr:    pr,
		se:    se,
		queue: queue,
	}
}

func (s *postService) Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}
	if len(pc.Content) == 0 {
		err := errors.New("post content cannot be empty")
		slog.Info(err.Error())
		return nil, err
	}

	parsed, err := parseEntries(pc.ScheduleEntries)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := &models.Post{
		UserID:  userID,
		Content: pc.Content,
	}

	postID, err := s.pr.Create(ctx, tx, post)
	if err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}
	post.ID = postID

	for _, entry := range parsed {
		entry.PostID = postID
		entryID, err := s.se.Create(ctx, tx, entry)
		if err != nil {
			return nil, fmt.Errorf("error creating schedule entry: %w", err)
		}
		entry.ID = entryID
		post.ScheduleEntries = append(post.ScheduleEntries, entry)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.enqueueEntries(ctx, userID, post.ScheduleEntries)

	return post, nil
}

func (s *postService) Update(ctx context.Context, userID int64, pu *transfer.PostUpdate) error {
	if pu == nil || pu.PostID == 0 {
		err := errors.New("post update data is invalid")
		slog.Info(err.Error())
		return err
	}

	owned, err := s.pr.CheckByUserID(ctx, pu.PostID, userID)
	if err != nil {
		return err
	}
	if !owned {
		err = errors.New("post not found")
		slog.Info(err.Error())
		return err
	}

	if len(pu.Content) > 0 {
		if err := s.pr.UpdateContent(ctx, pu.PostID, pu.Content); err != nil {
			return fmt.Errorf("error updating post content: %w", err)
		}
	}

	if len(pu.ScheduleEntries) > 0 {
		parsed, err := parseEntries(pu.ScheduleEntries)
		if err != nil {
			return err
		}
		var created []*models.ScheduleEntry
		for _, entry := range parsed {
			entry.PostID = pu.PostID
			entryID, err := s.se.Create(ctx, nil, entry)
			if err != nil {
				return fmt.Errorf("error creating schedule entry: %w", err)
			}
			entry.ID = entryID
			created = append(created, entry)
		}
		s.enqueueEntries(ctx, userID, created)
	}

	for _, entryID := range pu.CancelEntryIDs {
		jobID, ok, err := s.se.Cancel(ctx, entryID, userID)
		if err != nil {
			return fmt.Errorf("error cancelling entry %d: %w", entryID, err)
		}
		if !ok {
			// Already executing or settled; the in-flight attempt runs to
			// completion and the caller sees its terminal state.
			slog.Info(fmt.Sprintf("entry %d was not cancellable", entryID))
			continue
		}
		s.cancelJob(jobID)
	}

	return nil
}

func (s *postService) List(ctx context.Context, userID int64) ([]*models.Post, error) {
	posts, err := s.pr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, post := range posts {
		entries, err := s.se.ListByPostID(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		post.ScheduleEntries = entries
	}
	return posts, nil
}

func (s *postService) Info(ctx context.Context, postID, userID int64) (*models.Post, error) {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, errors.New("post not found")
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil || post == nil {
		return nil, err
	}

	entries, err := s.se.ListByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		attempts, err := s.se.ListAttempts(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		entry.Attempts = attempts
	}
	post.ScheduleEntries = entries

	return post, nil
}

func (s *postService) Calendar(ctx context.Context, userID int64, from, to time.Time) ([]*models.ScheduleEntry, error) {
	return s.se.ListWindow(ctx, userID, from, to)
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	owned, err := s.pr.CheckByUserID(ctx, postID, userID)
	if err != nil {
		return err
	}
	if !owned {
		err = errors.New("post not found")
		slog.Info(err.Error())
		return err
	}

	// Best-effort job cleanup; the worker re-fetches the post anyway and
	// settles not_found if it is gone before the job fires.
	jobIDs, err := s.se.PendingJobIDs(ctx, postID)
	if err != nil {
		slog.Info(err.Error())
	}
	for _, jobID := range jobIDs {
		s.cancelJob(jobID)
	}

	return s.pr.Remove(ctx, postID)
}

// enqueueEntries hands fresh entries to the durable queue. Failures leave the
// entry pending for the poll scheduler, never fail the API call.
func (s *postService) enqueueEntries(ctx context.Context, userID int64, entries []*models.ScheduleEntry) {
	if s.queue == nil || !s.queue.Available() {
		return
	}

	for _, entry := range entries {
		due := &models.DueEntry{
			EntryID:     entry.ID,
			PostID:      entry.PostID,
			UserID:      userID,
			Platform:    entry.Platform,
			ScheduledAt: entry.ScheduledAt,
		}
		jobID, err := s.queue.EnqueueEntry(ctx, due)
		if err != nil {
			slog.Info(fmt.Sprintf("failed to enqueue entry %d, poll scheduler will pick it up: %v", entry.ID, err))
			continue
		}
		if err := s.se.SetJobID(ctx, entry.ID, jobID); err != nil {
			slog.Info(fmt.Sprintf("failed to record job id for entry %d: %v", entry.ID, err))
		}
	}
}

func (s *postService) cancelJob(jobID string) {
	if s.queue == nil || jobID == "" {
		return
	}
	if err := s.queue.CancelJob(jobID); err != nil {
		slog.Info(fmt.Sprintf("failed to remove queue job %s: %v", jobID, err))
	}
}

func parseEntries(inputs []transfer.ScheduleEntryInput) ([]*models.ScheduleEntry, error) {
	supported := map[string]bool{
		models.PlatformFacebook:  true,
		models.PlatformInstagram: true,
		models.PlatformTiktok:    true,
		models.PlatformYoutube:   true,
	}

	var entries []*models.ScheduleEntry
	for _, input := range inputs {
		if !supported[input.Platform] {
			err := fmt.Errorf("unsupported platform: %s", input.Platform)
			slog.Info(err.Error())
			return nil, err
		}
		scheduledAt, err := time.Parse(scheduleTimeLayout, input.ScheduledAt)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Info(err.Error())
			return nil, err
		}
		entries = append(entries, &models.ScheduleEntry{
			Platform:    input.Platform,
			ScheduledAt: scheduledAt,
			Status:      models.EntryStatusPending,
		})
	}
	return entries, nil
}
