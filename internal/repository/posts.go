package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// PostsRepository covers ads and remixes and the mixed feed of all post types.
type PostsRepository struct {
	pool *pgxpool.Pool
}

// PostCreateParams bundles the fields of a new ad or remix.
type PostCreateParams struct {
	UserID      string
	Title       string
	Description string
	Brand       *string
	MediaURL    *string
	ShopURL     *string
	AdID        *string
}

// FeedFilters encapsulates feed filtering and pagination options.
type FeedFilters struct {
	Type   *domain.ContentType
	UserID *string
	Limit  int
	Cursor *FeedCursor
}

// FeedCursor allows stable pagination by created_at/id.
type FeedCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// FeedPage returns the paginated payload.
type FeedPage struct {
	Items      []domain.FeedItem
	NextCursor *string
}

const feedSource = `(
        SELECT id, 'ad'::text AS type, user_id, title, description, brand, media_url, created_at FROM ads
        UNION ALL
        SELECT id, 'remix'::text, user_id, title, description, NULL::text, media_url, created_at FROM remixes
        UNION ALL
        SELECT id, 'survey'::text, user_id, title, description, brand, media_url, created_at FROM surveys
    ) AS f`

const feedColumns = `
    f.id,
    f.type,
    f.user_id,
    f.title,
    f.description,
    f.brand,
    f.media_url,
    f.created_at,
    (SELECT COUNT(*) FROM likes l WHERE l.content_type = f.type AND l.content_id = f.id) AS likes,
    (SELECT COUNT(*) FROM comments c WHERE c.content_type = f.type AND c.content_id = f.id) AS comments
`

// CreateAd inserts an advertisement.
func (r *PostsRepository) CreateAd(ctx context.Context, params PostCreateParams) (domain.FeedItem, error) {
	const query = `
        INSERT INTO ads (user_id, title, description, brand, media_url, shop_url)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, user_id, title, description, brand, media_url, created_at
    `
	item := domain.FeedItem{Type: domain.ContentAd}
	err := r.pool.QueryRow(ctx, query, params.UserID, params.Title, params.Description, params.Brand, params.MediaURL, params.ShopURL).
		Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.Brand, &item.MediaURL, &item.CreatedAt)
	if err != nil {
		return domain.FeedItem{}, fmt.Errorf("insert ad: %w", err)
	}
	return item, nil
}

// CreateRemix inserts a remix, optionally pointing at the ad it reworks.
func (r *PostsRepository) CreateRemix(ctx context.Context, params PostCreateParams) (domain.FeedItem, error) {
	const query = `
        INSERT INTO remixes (user_id, ad_id, title, description, media_url)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, user_id, title, description, media_url, created_at
    `
	item := domain.FeedItem{Type: domain.ContentRemix}
	err := r.pool.QueryRow(ctx, query, params.UserID, params.AdID, params.Title, params.Description, params.MediaURL).
		Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.MediaURL, &item.CreatedAt)
	if err != nil {
		return domain.FeedItem{}, fmt.Errorf("insert remix: %w", err)
	}
	return item, nil
}

// GetAd loads an ad with its shop link and engagement counts.
func (r *PostsRepository) GetAd(ctx context.Context, id string) (domain.PostDetail, error) {
	const query = `
        SELECT a.id, a.user_id, a.title, a.description, a.brand, a.media_url, a.shop_url, a.created_at,
            (SELECT COUNT(*) FROM likes l WHERE l.content_type = 'ad' AND l.content_id = a.id),
            (SELECT COUNT(*) FROM comments c WHERE c.content_type = 'ad' AND c.content_id = a.id)
        FROM ads a
        WHERE a.id = $1
    `
	d := domain.PostDetail{FeedItem: domain.FeedItem{Type: domain.ContentAd}}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.Title, &d.Description, &d.Brand, &d.MediaURL, &d.ShopURL, &d.CreatedAt,
		&d.Likes, &d.Comments,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PostDetail{}, ErrNotFound
		}
		return domain.PostDetail{}, fmt.Errorf("get ad %s: %w", id, err)
	}
	return d, nil
}

// GetRemix loads a remix with the title and brand of the ad it reworks. Both
// stay nil when the remix has no parent or the parent was deleted.
func (r *PostsRepository) GetRemix(ctx context.Context, id string) (domain.PostDetail, error) {
	const query = `
        SELECT m.id, m.user_id, m.title, m.description, a.brand, m.media_url, m.ad_id, a.title, m.created_at,
            (SELECT COUNT(*) FROM likes l WHERE l.content_type = 'remix' AND l.content_id = m.id),
            (SELECT COUNT(*) FROM comments c WHERE c.content_type = 'remix' AND c.content_id = m.id)
        FROM remixes m
        LEFT JOIN ads a ON a.id = m.ad_id
        WHERE m.id = $1
    `
	d := domain.PostDetail{FeedItem: domain.FeedItem{Type: domain.ContentRemix}}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.Title, &d.Description, &d.Brand, &d.MediaURL, &d.AdID, &d.ParentTitle, &d.CreatedAt,
		&d.Likes, &d.Comments,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PostDetail{}, ErrNotFound
		}
		return domain.PostDetail{}, fmt.Errorf("get remix %s: %w", id, err)
	}
	return d, nil
}

// Exists reports whether a post of the given type exists.
func (r *PostsRepository) Exists(ctx context.Context, contentType domain.ContentType, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, contentType.Table())
	var exists bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// List returns the newest posts matching the filters along with their like
// and comment counts.
func (r *PostsRepository) List(ctx context.Context, filters FeedFilters) (FeedPage, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Type != nil {
		where = append(where, fmt.Sprintf("f.type = %s", arg(string(*filters.Type))))
	}
	if filters.UserID != nil {
		where = append(where, fmt.Sprintf("f.user_id = %s", arg(*filters.UserID)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(f.created_at, f.id) < (%s, %s::uuid)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(feedColumns)
	queryBuilder.WriteString(" FROM ")
	queryBuilder.WriteString(feedSource)
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY f.created_at DESC, f.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return FeedPage{}, err
	}
	defer rows.Close()

	items := make([]domain.FeedItem, 0)
	for rows.Next() {
		item, err := scanFeedItem(rows)
		if err != nil {
			return FeedPage{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return FeedPage{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(FeedCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return FeedPage{}, err
		}
		nextCursor = &token
	}

	return FeedPage{Items: items, NextCursor: nextCursor}, nil
}

// Dashboard summarises a user's posts: the total count and the five most
// recent posts, with likes and comments summed over those five.
func (r *PostsRepository) Dashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	const countQuery = `
        SELECT (SELECT COUNT(*) FROM ads WHERE user_id = $1)
             + (SELECT COUNT(*) FROM remixes WHERE user_id = $1)
             + (SELECT COUNT(*) FROM surveys WHERE user_id = $1)
    `

	var dash domain.Dashboard
	if err := r.pool.QueryRow(ctx, countQuery, userID).Scan(&dash.TotalPosts); err != nil {
		return domain.Dashboard{}, fmt.Errorf("count posts: %w", err)
	}

	page, err := r.List(ctx, FeedFilters{UserID: &userID, Limit: 5})
	if err != nil {
		return domain.Dashboard{}, fmt.Errorf("recent posts: %w", err)
	}

	dash.RecentPosts = make([]domain.PostStats, 0, len(page.Items))
	for _, item := range page.Items {
		dash.RecentPosts = append(dash.RecentPosts, domain.PostStats{
			ID:        item.ID,
			Type:      item.Type,
			Title:     item.Title,
			Likes:     item.Likes,
			Comments:  item.Comments,
			CreatedAt: item.CreatedAt,
		})
		dash.TotalLikes += item.Likes
		dash.TotalComments += item.Comments
	}
	return dash, nil
}

func scanFeedItem(row pgx.Row) (domain.FeedItem, error) {
	var (
		item        domain.FeedItem
		contentType string
	)
	err := row.Scan(
		&item.ID,
		&contentType,
		&item.UserID,
		&item.Title,
		&item.Description,
		&item.Brand,
		&item.MediaURL,
		&item.CreatedAt,
		&item.Likes,
		&item.Comments,
	)
	if err != nil {
		return domain.FeedItem{}, err
	}
	item.Type = domain.ContentType(contentType)
	return item, nil
}

func encodeCursor(c FeedCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into a FeedCursor.
func DecodeCursor(token string) (*FeedCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor FeedCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}
