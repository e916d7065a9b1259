package transfer

import "postqueue/internal/models"

// ScheduleEntryInput is one (platform, time) intent in a create/update call.
// ScheduledAt uses the "2006-01-02T15:04" layout, same as the web client.
type ScheduleEntryInput struct {
	Platform    string `json:"platform"`
	ScheduledAt string `json:"scheduled_at"`
}

type PostCreation struct {
	Content         map[string]models.PlatformContent `json:"content"`
	ScheduleEntries []ScheduleEntryInput              `json:"schedule_entries"`
}

// PostUpdate appends new schedule entries and/or cancels existing ones.
type PostUpdate struct {
	PostID          int64                             `json:"post_id"`
	Content         map[string]models.PlatformContent `json:"content,omitempty"`
	ScheduleEntries []ScheduleEntryInput              `json:"schedule_entries,omitempty"`
	CancelEntryIDs  []int64                           `json:"cancel_entry_ids,omitempty"`
}

type PublishNow struct {
	PostID   int64  `json:"post_id"`
	Platform string `json:"platform"`
}
