package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"postqueue/internal/models"
)

// ErrSettleConflict means the entry left processing between claim and settle.
// With claim being the sole admission point this indicates an operator write.
var ErrSettleConflict = errors.New("schedule entry is not in processing state")

// ScheduleEntryRepository is the lifecycle tracker for schedule entries.
// Claim is the only synchronization primitive in the pipeline: a conditional
// update that moves an entry into processing only while its status is still
// claimable, so the poll scheduler and the queue workers can race over the
// same entry without double-publishing.
type ScheduleEntryRepository interface {
	Create(ctx context.Context, tx *sql.Tx, entry *models.ScheduleEntry) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.ScheduleEntry, error)
	ListAttempts(ctx context.Context, entryID int64) ([]*models.AttemptRecord, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DueEntry, error)
	ListWindow(ctx context.Context, userID int64, from, to time.Time) ([]*models.ScheduleEntry, error)
	ClaimByID(ctx context.Context, entryID int64) (bool, error)
	Claim(ctx context.Context, postID int64, platform string, scheduledAt time.Time, tolerance time.Duration) (int64, bool, error)
	Settle(ctx context.Context, entryID, postID int64, platform string, outcome *models.AttemptOutcome) error
	RecordDirect(ctx context.Context, postID int64, platform string, outcome *models.AttemptOutcome) error
	Cancel(ctx context.Context, entryID, userID int64) (string, bool, error)
	SetJobID(ctx context.Context, entryID int64, jobID string) error
	PendingJobIDs(ctx context.Context, postID int64) ([]string, error)
}

type scheduleEntryRepository struct {
	db *sql.DB
}

func NewScheduleEntryRepository(db *sql.DB) ScheduleEntryRepository {
	return &scheduleEntryRepository{db: db}
}

func (r *scheduleEntryRepository) Create(ctx context.Context, tx *sql.Tx, entry *models.ScheduleEntry) (int64, error) {
	query := `
		INSERT INTO schedule_entries (post_id, platform, scheduled_at, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	status := entry.Status
	if status == "" {
		status = models.EntryStatusPending
	}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, entry.PostID, entry.Platform, entry.ScheduledAt, status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, entry.PostID, entry.Platform, entry.ScheduledAt, status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduleEntryRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.ScheduleEntry, error) {
	query := `
		SELECT id, post_id, platform, scheduled_at, status, last_attempt_at, posted_at, error, job_id, created_at, updated_at
		FROM schedule_entries
		WHERE post_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ScheduleEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *scheduleEntryRepository) ListAttempts(ctx context.Context, entryID int64) ([]*models.AttemptRecord, error) {
	query := `
		SELECT id, entry_id, post_id, platform, status, external_id, message, details, attempted_at
		FROM publish_attempts
		WHERE entry_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, entryID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var attempts []*models.AttemptRecord
	for rows.Next() {
		var a models.AttemptRecord
		var externalID, message, details sql.NullString
		err := rows.Scan(&a.ID, &a.EntryID, &a.PostID, &a.Platform, &a.Status, &externalID, &message, &details, &a.AttemptedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		a.ExternalID = externalID.String
		a.Message = message.String
		a.Details = details.String
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

func (r *scheduleEntryRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DueEntry, error) {
	query := `
		SELECT e.id, e.post_id, p.user_id, e.platform, e.scheduled_at
		FROM schedule_entries e
		JOIN posts p ON p.id = e.post_id
		WHERE e.status = ANY($1) AND e.scheduled_at <= $2
		ORDER BY e.scheduled_at
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(models.ClaimableStatuses), now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var due []*models.DueEntry
	for rows.Next() {
		var d models.DueEntry
		if err := rows.Scan(&d.EntryID, &d.PostID, &d.UserID, &d.Platform, &d.ScheduledAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		due = append(due, &d)
	}
	return due, rows.Err()
}

func (r *scheduleEntryRepository) ListWindow(ctx context.Context, userID int64, from, to time.Time) ([]*models.ScheduleEntry, error) {
	query := `
		SELECT e.id, e.post_id, e.platform, e.scheduled_at, e.status, e.last_attempt_at, e.posted_at, e.error, e.job_id, e.created_at, e.updated_at
		FROM schedule_entries e
		JOIN posts p ON p.id = e.post_id
		WHERE p.user_id = $1 AND e.scheduled_at BETWEEN $2 AND $3
		ORDER BY e.scheduled_at
	`
	rows, err := r.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ScheduleEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClaimByID is the poll scheduler's claim: it already holds the row id from
// the due query, so a bare conditional update is enough.
func (r *scheduleEntryRepository) ClaimByID(ctx context.Context, entryID int64) (bool, error) {
	query := `
		UPDATE schedule_entries
		SET status = $2, last_attempt_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`
	result, err := r.db.ExecContext(ctx, query, entryID, models.EntryStatusProcessing, pq.Array(models.ClaimableStatuses))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

// Claim locates an entry by (post, platform, scheduled_at) and moves it into
// processing. An exact timestamp match is tried first; on a miss the nearest
// entry for that platform within the tolerance window is claimed instead,
// which papers over serialization precision drift between the enqueue path
// and the stored value. The tolerance window is a correctness compromise;
// widening it beyond about a minute risks claiming a neighboring entry.
func (r *scheduleEntryRepository) Claim(ctx context.Context, postID int64, platform string, scheduledAt time.Time, tolerance time.Duration) (int64, bool, error) {
	exact := `
		UPDATE schedule_entries
		SET status = $1, last_attempt_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM schedule_entries
			WHERE post_id = $2 AND platform = $3 AND status = ANY($4) AND scheduled_at = $5
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = ANY($4)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, exact, models.EntryStatusProcessing, postID, platform,
		pq.Array(models.ClaimableStatuses), scheduledAt).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		slog.Info(err.Error())
		return 0, false, err
	}

	nearest := `
		UPDATE schedule_entries
		SET status = $1, last_attempt_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM schedule_entries
			WHERE post_id = $2 AND platform = $3 AND status = ANY($4)
				AND scheduled_at BETWEEN $5 AND $6
			ORDER BY ABS(EXTRACT(EPOCH FROM (scheduled_at - $7::timestamptz)))
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = ANY($4)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, nearest, models.EntryStatusProcessing, postID, platform,
		pq.Array(models.ClaimableStatuses), scheduledAt.Add(-tolerance), scheduledAt.Add(tolerance), scheduledAt).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		slog.Info(err.Error())
		return 0, false, err
	}

	return id, true, nil
}

// Settle records an attempt outcome as one transaction: append the attempt
// row, move the entry out of processing, and fold the outcome into the post's
// publish summary. Readers of the post never observe the attempt without the
// summary or vice versa.
func (r *scheduleEntryRepository) Settle(ctx context.Context, entryID, postID int64, platform string, outcome *models.AttemptOutcome) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	status := models.EntryStatusFailed
	var postedAt *time.Time
	var lastError string
	if outcome.Status == models.AttemptStatusPosted {
		status = models.EntryStatusPosted
		now := time.Now()
		postedAt = &now
	} else {
		lastError = outcome.Message
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = $2, posted_at = $3, error = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`, entryID, status, postedAt, lastError, models.EntryStatusProcessing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrSettleConflict
	}

	if err := appendAttempt(ctx, tx, &entryID, postID, platform, outcome); err != nil {
		return err
	}

	if err := mergeSummary(ctx, tx, postID, platform, outcome); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// RecordDirect is the claimless variant used by immediate publishes: there is
// no schedule entry to race over, but the attempt trail and summary follow
// the same contract as Settle.
func (r *scheduleEntryRepository) RecordDirect(ctx context.Context, postID int64, platform string, outcome *models.AttemptOutcome) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if err := appendAttempt(ctx, tx, nil, postID, platform, outcome); err != nil {
		return err
	}

	if err := mergeSummary(ctx, tx, postID, platform, outcome); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Cancel marks a pending or queued entry cancelled and hands back its queue
// job reference for best-effort removal. Entries already processing are left
// alone; the in-flight attempt runs to completion.
func (r *scheduleEntryRepository) Cancel(ctx context.Context, entryID, userID int64) (string, bool, error) {
	query := `
		UPDATE schedule_entries e
		SET status = $3, updated_at = NOW()
		FROM posts p
		WHERE e.id = $1 AND e.post_id = p.id AND p.user_id = $2
			AND e.status IN ($4, $5)
		RETURNING e.job_id
	`

	var jobID sql.NullString
	err := r.db.QueryRowContext(ctx, query, entryID, userID, models.EntryStatusCancelled,
		models.EntryStatusPending, models.EntryStatusQueued).Scan(&jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		slog.Info(err.Error())
		return "", false, err
	}

	return jobID.String, true, nil
}

func (r *scheduleEntryRepository) SetJobID(ctx context.Context, entryID int64, jobID string) error {
	query := `
		UPDATE schedule_entries
		SET job_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, entryID, jobID, models.EntryStatusQueued, models.EntryStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleEntryRepository) PendingJobIDs(ctx context.Context, postID int64) ([]string, error) {
	query := `
		SELECT job_id FROM schedule_entries
		WHERE post_id = $1 AND job_id <> '' AND status IN ($2, $3)
	`
	rows, err := r.db.QueryContext(ctx, query, postID, models.EntryStatusPending, models.EntryStatusQueued)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobIDs []string
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobIDs = append(jobIDs, jobID)
	}
	return jobIDs, rows.Err()
}

func appendAttempt(ctx context.Context, tx *sql.Tx, entryID *int64, postID int64, platform string, outcome *models.AttemptOutcome) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO publish_attempts (entry_id, post_id, platform, status, external_id, message, details, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, entryID, postID, platform, outcome.Status, outcome.ExternalID, outcome.Message, outcome.Details)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func mergeSummary(ctx context.Context, tx *sql.Tx, postID int64, platform string, outcome *models.AttemptOutcome) error {
	var raw []byte
	err := tx.QueryRowContext(ctx, `SELECT publish_summary FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&raw)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	var summary models.PublishSummary
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &summary); err != nil {
			slog.Info(err.Error())
			return err
		}
	}

	now := time.Now()
	if outcome.Status == models.AttemptStatusPosted {
		if summary.Posted == nil {
			summary.Posted = make(map[string]models.PostedRecord)
		}
		summary.Posted[platform] = models.PostedRecord{PostedAt: now, ExternalID: outcome.ExternalID}
		delete(summary.Failed, platform)
	} else {
		if summary.Failed == nil {
			summary.Failed = make(map[string]models.FailedRecord)
		}
		summary.Failed[platform] = models.FailedRecord{FailedAt: now, Message: outcome.Message}
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE posts SET publish_summary = $2, updated_at = NOW() WHERE id = $1`, postID, encoded)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanEntry(row rowScanner) (*models.ScheduleEntry, error) {
	var e models.ScheduleEntry
	var lastAttemptAt, postedAt sql.NullTime
	var entryError, jobID sql.NullString

	err := row.Scan(&e.ID, &e.PostID, &e.Platform, &e.ScheduledAt, &e.Status,
		&lastAttemptAt, &postedAt, &entryError, &jobID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastAttemptAt.Valid {
		e.LastAttemptAt = &lastAttemptAt.Time
	}
	if postedAt.Valid {
		e.PostedAt = &postedAt.Time
	}
	e.Error = entryError.String
	e.JobID = jobID.String

	return &e, nil
}
