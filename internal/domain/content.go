package domain

import (
	"fmt"
	"time"
)

// ContentType identifies the kind of post a like or comment refers to.
type ContentType string

const (
	ContentAd     ContentType = "ad"
	ContentRemix  ContentType = "remix"
	ContentSurvey ContentType = "survey"
)

// ParseContentType validates a raw content type.
func ParseContentType(raw string) (ContentType, error) {
	switch ContentType(raw) {
	case ContentAd, ContentRemix, ContentSurvey:
		return ContentType(raw), nil
	default:
		return "", fmt.Errorf("unknown content type %q", raw)
	}
}

// Table returns the table holding posts of this type.
func (t ContentType) Table() string {
	switch t {
	case ContentAd:
		return "ads"
	case ContentRemix:
		return "remixes"
	default:
		return "surveys"
	}
}

// FeedItem is one post in the mixed content feed.
type FeedItem struct {
	ID          string
	Type        ContentType
	UserID      string
	Title       string
	Description string
	Brand       *string
	MediaURL    *string
	Likes       int64
	Comments    int64
	CreatedAt   time.Time
}

// PostDetail is an ad or remix as shown on its own page. For a remix Brand is
// the parent ad's brand.
type PostDetail struct {
	FeedItem
	ShopURL     *string
	AdID        *string
	ParentTitle *string
}

// Engagement summarises likes and comments on a post.
type Engagement struct {
	Likes    int64
	Comments int64
	IsLiked  bool
}

// Comment is a text comment on a post.
type Comment struct {
	ID          string
	UserID      string
	ContentType ContentType
	ContentID   string
	Text        string
	DisplayName *string
	AvatarURL   *string
	CreatedAt   time.Time
}

// Review is a rated review of an advertisement.
type Review struct {
	ID          string
	AdID        string
	UserID      string
	Rating      int
	Text        string
	DisplayName *string
	CreatedAt   time.Time
}

// ReviewSummary holds the average rating and count for an advertisement.
type ReviewSummary struct {
	Average float32
	Count   int64
}

// PostStats is a user's post with its engagement counts.
type PostStats struct {
	ID        string
	Type      ContentType
	Title     string
	Likes     int64
	Comments  int64
	CreatedAt time.Time
}

// Dashboard collects engagement statistics for one user.
type Dashboard struct {
	TotalPosts    int64
	TotalLikes    int64
	TotalComments int64
	RecentPosts   []PostStats
}

// Profile is the public identity of a user.
type Profile struct {
	ID          string
	DisplayName string
	AvatarURL   *string
	CreatedAt   time.Time
}
