package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// ProfilesRepository stores the public profile shown next to comments and reviews.
type ProfilesRepository struct {
	pool *pgxpool.Pool
}

// Upsert creates or updates the profile of a user.
func (r *ProfilesRepository) Upsert(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	const query = `
        INSERT INTO profiles (id, display_name, avatar_url)
        VALUES ($1,$2,$3)
        ON CONFLICT (id)
        DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url
        RETURNING id, display_name, avatar_url, created_at
    `
	var out domain.Profile
	err := r.pool.QueryRow(ctx, query, p.ID, p.DisplayName, p.AvatarURL).Scan(&out.ID, &out.DisplayName, &out.AvatarURL, &out.CreatedAt)
	if err != nil {
		return domain.Profile{}, err
	}
	return out, nil
}

// Get fetches a profile by user id.
func (r *ProfilesRepository) Get(ctx context.Context, id string) (domain.Profile, error) {
	const query = `SELECT id, display_name, avatar_url, created_at FROM profiles WHERE id = $1`
	var out domain.Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(&out.ID, &out.DisplayName, &out.AvatarURL, &out.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Profile{}, ErrNotFound
		}
		return domain.Profile{}, err
	}
	return out, nil
}
