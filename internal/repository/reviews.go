package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// ReviewsRepository provides helpers for advertisement reviews.
type ReviewsRepository struct {
	pool *pgxpool.Pool
}

// ReviewCreateParams captures the payload required to post a review.
type ReviewCreateParams struct {
	AdID   string
	UserID string
	Rating int
	Text   string
}

// Create inserts a review. A second review by the same user for the same ad
// returns ErrConflict.
func (r *ReviewsRepository) Create(ctx context.Context, params ReviewCreateParams) (domain.Review, error) {
	const query = `
        WITH inserted AS (
            INSERT INTO reviews (ad_id, user_id, rating, text)
            VALUES ($1,$2,$3,$4)
            RETURNING id, ad_id, user_id, rating, text, created_at
        )
        SELECT i.id, i.ad_id, i.user_id, i.rating, i.text, p.display_name, i.created_at
        FROM inserted i
        LEFT JOIN profiles p ON p.id = i.user_id
    `

	var review domain.Review
	var rating int16
	err := r.pool.QueryRow(ctx, query, params.AdID, params.UserID, params.Rating, params.Text).Scan(
		&review.ID,
		&review.AdID,
		&review.UserID,
		&rating,
		&review.Text,
		&review.DisplayName,
		&review.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Review{}, ErrConflict
		}
		return domain.Review{}, fmt.Errorf("insert review: %w", err)
	}
	review.Rating = int(rating)
	return review, nil
}

// List returns the reviews of an ad, newest first.
func (r *ReviewsRepository) List(ctx context.Context, adID string) ([]domain.Review, error) {
	const query = `
        SELECT r.id, r.ad_id, r.user_id, r.rating, r.text, p.display_name, r.created_at
        FROM reviews r
        LEFT JOIN profiles p ON p.id = r.user_id
        WHERE r.ad_id = $1
        ORDER BY r.created_at DESC, r.id DESC
    `

	rows, err := r.pool.Query(ctx, query, adID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var review domain.Review
		var rating int16
		if err := rows.Scan(&review.ID, &review.AdID, &review.UserID, &rating, &review.Text, &review.DisplayName, &review.CreatedAt); err != nil {
			return nil, err
		}
		review.Rating = int(rating)
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reviews, nil
}

// Summary returns the rating average, rounded to one decimal, and the review count for an ad.
func (r *ReviewsRepository) Summary(ctx context.Context, adID string) (domain.ReviewSummary, error) {
	const query = `
        SELECT COALESCE(ROUND(AVG(rating)::numeric, 1), 0)::float4 AS average,
               COUNT(*)::int8 AS count
        FROM reviews
        WHERE ad_id = $1
    `

	var summary domain.ReviewSummary
	if err := r.pool.QueryRow(ctx, query, adID).Scan(&summary.Average, &summary.Count); err != nil {
		return domain.ReviewSummary{}, fmt.Errorf("aggregate reviews: %w", err)
	}
	return summary, nil
}
