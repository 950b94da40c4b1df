package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// EngagementRepository stores likes and comments on posts of any type.
type EngagementRepository struct {
	pool *pgxpool.Pool
}

// CommentCreateParams captures the payload required to add a comment.
type CommentCreateParams struct {
	UserID      string
	ContentType domain.ContentType
	ContentID   string
	Text        string
}

// ToggleLike removes the user's like if present and adds it otherwise. It
// returns whether the post is liked afterwards.
func (r *EngagementRepository) ToggleLike(ctx context.Context, userID string, contentType domain.ContentType, contentID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        DELETE FROM likes
        WHERE user_id = $1 AND content_type = $2 AND content_id = $3
    `, userID, string(contentType), contentID)
	if err != nil {
		return false, fmt.Errorf("unlike: %w", err)
	}

	liked := tag.RowsAffected() == 0
	if liked {
		_, err = tx.Exec(ctx, `
            INSERT INTO likes (user_id, content_type, content_id)
            VALUES ($1,$2,$3)
            ON CONFLICT (user_id, content_type, content_id) DO NOTHING
        `, userID, string(contentType), contentID)
		if err != nil {
			return false, fmt.Errorf("like: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return liked, nil
}

// Engagement counts likes and comments of a post. IsLiked is only computed
// when viewerID is non-empty.
func (r *EngagementRepository) Engagement(ctx context.Context, contentType domain.ContentType, contentID, viewerID string) (domain.Engagement, error) {
	const query = `
        SELECT
            (SELECT COUNT(*) FROM likes WHERE content_type = $1 AND content_id = $2),
            (SELECT COUNT(*) FROM comments WHERE content_type = $1 AND content_id = $2),
            COALESCE((SELECT TRUE FROM likes
                      WHERE content_type = $1 AND content_id = $2 AND user_id = $3::uuid), FALSE)
    `

	var viewer *string
	if viewerID != "" {
		viewer = &viewerID
	}

	var e domain.Engagement
	err := r.pool.QueryRow(ctx, query, string(contentType), contentID, viewer).Scan(&e.Likes, &e.Comments, &e.IsLiked)
	if err != nil {
		return domain.Engagement{}, fmt.Errorf("engagement: %w", err)
	}
	return e, nil
}

// ListComments returns the comments of a post, newest first, with the
// author's profile details when a profile exists.
func (r *EngagementRepository) ListComments(ctx context.Context, contentType domain.ContentType, contentID string, limit int) ([]domain.Comment, error) {
	if limit <= 0 {
		limit = 50
	} else if limit > 200 {
		limit = 200
	}

	const query = `
        SELECT c.id, c.user_id, c.content_type, c.content_id, c.text, p.display_name, p.avatar_url, c.created_at
        FROM comments c
        LEFT JOIN profiles p ON p.id = c.user_id
        WHERE c.content_type = $1 AND c.content_id = $2
        ORDER BY c.created_at DESC, c.id DESC
        LIMIT $3
    `

	rows, err := r.pool.Query(ctx, query, string(contentType), contentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]domain.Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateComment inserts a comment and returns it with the author's profile details.
func (r *EngagementRepository) CreateComment(ctx context.Context, params CommentCreateParams) (domain.Comment, error) {
	const query = `
        WITH inserted AS (
            INSERT INTO comments (user_id, content_type, content_id, text)
            VALUES ($1,$2,$3,$4)
            RETURNING id, user_id, content_type, content_id, text, created_at
        )
        SELECT i.id, i.user_id, i.content_type, i.content_id, i.text, p.display_name, p.avatar_url, i.created_at
        FROM inserted i
        LEFT JOIN profiles p ON p.id = i.user_id
    `
	row := r.pool.QueryRow(ctx, query, params.UserID, string(params.ContentType), params.ContentID, params.Text)
	c, err := scanComment(row)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var (
		c           domain.Comment
		contentType string
	)
	err := row.Scan(&c.ID, &c.UserID, &contentType, &c.ContentID, &c.Text, &c.DisplayName, &c.AvatarURL, &c.CreatedAt)
	if err != nil {
		return domain.Comment{}, err
	}
	c.ContentType = domain.ContentType(contentType)
	return c, nil
}
