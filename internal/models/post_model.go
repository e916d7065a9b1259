package models

import "time"

// PlatformContent is the per-platform content block of a post. The shape is
// permissive on purpose; the publisher validates it right before the external
// call, not at storage time.
type PlatformContent struct {
	Title    string   `json:"title,omitempty"`
	Caption  string   `json:"caption,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	VideoURL string   `json:"video_url,omitempty"`
}

// PostedRecord marks a platform the post went live on.
type PostedRecord struct {
	PostedAt   time.Time `json:"posted_at"`
	ExternalID string    `json:"external_id,omitempty"`
}

// FailedRecord keeps the last failure per platform.
type FailedRecord struct {
	FailedAt time.Time `json:"failed_at"`
	Message  string    `json:"message,omitempty"`
}

// PublishSummary is a denormalized cache over the schedule entries so "is this
// post live anywhere" never needs an entry scan. It is rewritten inside the
// same transaction as every settle.
type PublishSummary struct {
	Posted map[string]PostedRecord `json:"posted,omitempty"`
	Failed map[string]FailedRecord `json:"failed,omitempty"`
}

type Post struct {
	ID              int64                      `db:"id" json:"id"`
	UserID          int64                      `db:"user_id" json:"user_id"`
	Content         map[string]PlatformContent `db:"content" json:"content"`
	ExternalPostIDs map[string]string          `db:"external_post_ids" json:"external_post_ids,omitempty"`
	Summary         PublishSummary             `db:"publish_summary" json:"publish_summary"`
	ScheduleEntries []*ScheduleEntry           `json:"schedule_entries,omitempty"`
	CreatedAt       time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                  `db:"updated_at" json:"updated_at"`
}
