package models

import "time"

const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTiktok    = "tiktok"
	PlatformYoutube   = "youtube"
)

// Schedule entry statuses. Entries only ever move forward:
// pending -> queued -> processing -> posted | failed | cancelled.
const (
	EntryStatusPending    = "pending"
	EntryStatusQueued     = "queued"
	EntryStatusProcessing = "processing"
	EntryStatusPosted     = "posted"
	EntryStatusFailed     = "failed"
	EntryStatusCancelled  = "cancelled"
)

// ClaimableStatuses are the only statuses an execution path may claim from.
// failed stays claimable so a rescheduled or re-enqueued attempt can run.
var ClaimableStatuses = []string{EntryStatusPending, EntryStatusQueued, EntryStatusFailed}

// ScheduleEntry is one (platform, time) publish intent under a post.
// Cancellation is a status, never a delete; the audit trail survives.
type ScheduleEntry struct {
	ID            int64            `db:"id" json:"id"`
	PostID        int64            `db:"post_id" json:"post_id"`
	Platform      string           `db:"platform" json:"platform"`
	ScheduledAt   time.Time        `db:"scheduled_at" json:"scheduled_at"`
	Status        string           `db:"status" json:"status"`
	LastAttemptAt *time.Time       `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	PostedAt      *time.Time       `db:"posted_at" json:"posted_at,omitempty"`
	Error         string           `db:"error" json:"error,omitempty"`
	JobID         string           `db:"job_id" json:"job_id,omitempty"`
	Attempts      []*AttemptRecord `json:"attempts,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

const (
	AttemptStatusPosted = "posted"
	AttemptStatusFailed = "failed"
)

// AttemptRecord is one row of the append-only attempt audit trail.
// EntryID is nil for immediate (claimless) publishes.
type AttemptRecord struct {
	ID          int64     `db:"id" json:"id"`
	EntryID     *int64    `db:"entry_id" json:"entry_id,omitempty"`
	PostID      int64     `db:"post_id" json:"post_id"`
	Platform    string    `db:"platform" json:"platform"`
	Status      string    `db:"status" json:"status"`
	ExternalID  string    `db:"external_id" json:"external_id,omitempty"`
	Message     string    `db:"message" json:"message,omitempty"`
	Details     string    `db:"details" json:"details,omitempty"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}

// AttemptOutcome is what an execution path hands to Settle.
type AttemptOutcome struct {
	Status     string
	ExternalID string
	Message    string
	Details    string
}

// DueEntry is the slim row both execution paths work from. Post content is
// deliberately not carried here; it is re-fetched at execution time.
type DueEntry struct {
	EntryID     int64     `db:"id" json:"entry_id"`
	PostID      int64     `db:"post_id" json:"post_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Platform    string    `db:"platform" json:"platform"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
}
