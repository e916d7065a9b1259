package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"postqueue/internal/models"
)

const TaskTypePublishEntry = "publish:entry"

// PublishEntryPayload carries the identity of one schedule entry. The worker
// re-claims against the store at execution time rather than trusting the
// payload, so a stale job is harmless.
type PublishEntryPayload struct {
	EntryID     int64     `json:"entry_id"`
	PostID      int64     `json:"post_id"`
	UserID      int64     `json:"user_id"`
	Platform    string    `json:"platform"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// jobRef is the deterministic task ID for an entry. Re-enqueueing the same
// slot hits asynq's ID conflict instead of producing a duplicate job.
func jobRef(due *models.DueEntry) string {
	return fmt.Sprintf("publish:%d:%s:%d", due.PostID, due.Platform, due.ScheduledAt.Unix())
}

func NewPublishEntryTask(due *models.DueEntry) (*asynq.Task, error) {
	payload, err := json.Marshal(PublishEntryPayload{
		EntryID:     due.EntryID,
		PostID:      due.PostID,
		UserID:      due.UserID,
		Platform:    due.Platform,
		ScheduledAt: due.ScheduledAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePublishEntry, payload), nil
}
