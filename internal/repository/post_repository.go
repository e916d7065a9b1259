package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"postqueue/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	UpdateContent(ctx context.Context, postID int64, content map[string]models.PlatformContent) error
	SetExternalPostID(ctx context.Context, postID int64, platform, externalID string) error
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, content, external_post_ids, publish_summary)
		VALUES ($1, $2, '{}'::jsonb, '{}'::jsonb)
		RETURNING id
	`

	content, err := json.Marshal(post.Content)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, content).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, content).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT id, user_id, content, external_post_ids, publish_summary, created_at, updated_at FROM posts WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	post, err := scanPost(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT id, user_id, content, external_post_ids, publish_summary, created_at, updated_at FROM posts WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := "SELECT 1 FROM posts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *postRepository) UpdateContent(ctx context.Context, postID int64, content map[string]models.PlatformContent) error {
	encoded, err := json.Marshal(content)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `UPDATE posts SET content = $2, updated_at = $3 WHERE id = $1`
	_, err = r.db.ExecContext(ctx, query, postID, encoded, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SetExternalPostID merges the platform's returned post id into the metrics
// correlation map. Callers treat this as best-effort; a failure here must not
// fail the publish itself.
func (r *postRepository) SetExternalPostID(ctx context.Context, postID int64, platform, externalID string) error {
	patch, err := json.Marshal(map[string]string{platform: externalID})
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE posts
		SET external_post_ids = COALESCE(external_post_ids, '{}'::jsonb) || $2::jsonb,
			updated_at = NOW()
		WHERE id = $1
	`
	_, err = r.db.ExecContext(ctx, query, postID, patch)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var content, externalIDs, summary []byte

	err := row.Scan(&post.ID, &post.UserID, &content, &externalIDs, &summary, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(content) > 0 {
		if err := json.Unmarshal(content, &post.Content); err != nil {
			return nil, err
		}
	}
	if len(externalIDs) > 0 {
		if err := json.Unmarshal(externalIDs, &post.ExternalPostIDs); err != nil {
			return nil, err
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &post.Summary); err != nil {
			return nil, err
		}
	}

	return &post, nil
}
