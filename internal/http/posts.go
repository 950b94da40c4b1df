package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/usbest/internal/domain"
	"github.com/Clark-Hu/usbest/internal/repository"
)

type postKind int

const (
	postKindAd postKind = iota
	postKindRemix
)

type postCreateRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Brand       *string `json:"brand"`
	MediaURL    *string `json:"mediaUrl"`
	ShopURL     *string `json:"shopUrl"`
	AdID        *string `json:"adId"`
}

type feedItemResponse struct {
	ID          string             `json:"id"`
	Type        domain.ContentType `json:"type"`
	UserID      string             `json:"userId"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Brand       *string            `json:"brand,omitempty"`
	MediaURL    *string            `json:"mediaUrl,omitempty"`
	Likes       int64              `json:"likes"`
	Comments    int64              `json:"comments"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type postDetailResponse struct {
	feedItemResponse
	ShopURL     *string             `json:"shopUrl,omitempty"`
	AdID        *string             `json:"adId,omitempty"`
	ParentTitle *string             `json:"parentTitle,omitempty"`
	Reviews     *reviewListResponse `json:"reviews,omitempty"`
}

type feedResponse struct {
	Items      []feedItemResponse `json:"items"`
	NextCursor *string            `json:"nextCursor,omitempty"`
}

type postStatsResponse struct {
	ID        string             `json:"id"`
	Type      domain.ContentType `json:"type"`
	Title     string             `json:"title"`
	Likes     int64              `json:"likes"`
	Comments  int64              `json:"comments"`
	CreatedAt time.Time          `json:"createdAt"`
}

type dashboardResponse struct {
	TotalPosts    int64               `json:"totalPosts"`
	TotalLikes    int64               `json:"totalLikes"`
	TotalComments int64               `json:"totalComments"`
	RecentPosts   []postStatsResponse `json:"recentPosts"`
}

type profileRequest struct {
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

type profileResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	filters, err := buildFeedFilters(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	page, err := s.repo.Posts.List(r.Context(), filters)
	if err != nil {
		s.logger.Printf("list feed error: %v", err)
		s.respondInternal(w, "Failed to load feed")
		return
	}

	items := make([]feedItemResponse, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, toFeedItemResponse(item))
	}
	s.respondJSON(w, http.StatusOK, feedResponse{Items: items, NextCursor: page.NextCursor})
}

func buildFeedFilters(query url.Values) (repository.FeedFilters, error) {
	var filters repository.FeedFilters

	if val := strings.TrimSpace(query.Get("type")); val != "" {
		contentType, err := domain.ParseContentType(val)
		if err != nil {
			return filters, fmt.Errorf("invalid type value")
		}
		filters.Type = &contentType
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, fmt.Errorf("invalid cursor")
		}
		if _, err := uuid.Parse(cursor.ID); err != nil || cursor.CreatedAt.IsZero() {
			return filters, fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, nil
}

func (s *Server) handleCreatePost(kind postKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req postCreateRequest
		if err := decodeJSONBody(w, r, &req); err != nil {
			s.respondDecodeError(w, err)
			return
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
			return
		}

		params := repository.PostCreateParams{
			UserID:      currentUser(r),
			Title:       title,
			Description: strings.TrimSpace(req.Description),
			Brand:       normalizeStringPtr(req.Brand),
			MediaURL:    normalizeStringPtr(req.MediaURL),
			ShopURL:     normalizeStringPtr(req.ShopURL),
		}

		var (
			item domain.FeedItem
			err  error
		)
		switch kind {
		case postKindRemix:
			if adID := normalizeStringPtr(req.AdID); adID != nil {
				parsed, perr := uuid.Parse(*adID)
				if perr != nil {
					s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "adId must be a valid id")
					return
				}
				exists, xerr := s.repo.Posts.Exists(r.Context(), domain.ContentAd, parsed.String())
				if xerr != nil {
					s.logger.Printf("lookup ad %s: %v", parsed, xerr)
					s.respondInternal(w, "Failed to create remix")
					return
				}
				if !exists {
					s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "adId does not reference an ad")
					return
				}
				id := parsed.String()
				params.AdID = &id
			}
			item, err = s.repo.Posts.CreateRemix(r.Context(), params)
		default:
			item, err = s.repo.Posts.CreateAd(r.Context(), params)
		}
		if err != nil {
			s.logger.Printf("create post error: %v", err)
			s.respondInternal(w, "Failed to create post")
			return
		}
		s.respondJSON(w, http.StatusCreated, toFeedItemResponse(item))
	}
}

// handleGetPost serves the detail page data of an ad, with its reviews, or of
// a remix, with its parent ad.
func (s *Server) handleGetPost(kind postKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(r, "id")
		if !ok {
			s.respondNotFound(w)
			return
		}

		var (
			detail domain.PostDetail
			err    error
		)
		switch kind {
		case postKindRemix:
			detail, err = s.repo.Posts.GetRemix(r.Context(), id)
		default:
			detail, err = s.repo.Posts.GetAd(r.Context(), id)
		}
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.respondNotFound(w)
				return
			}
			s.logger.Printf("get post %s: %v", id, err)
			s.respondInternal(w, "Failed to load post")
			return
		}

		resp := postDetailResponse{
			feedItemResponse: toFeedItemResponse(detail.FeedItem),
			ShopURL:          detail.ShopURL,
			AdID:             detail.AdID,
			ParentTitle:      detail.ParentTitle,
		}
		if kind == postKindAd {
			reviews, err := s.loadReviews(r.Context(), id)
			if err != nil {
				s.logger.Printf("reviews for ad %s: %v", id, err)
				s.respondInternal(w, "Failed to load post")
				return
			}
			resp.Reviews = &reviews
		}
		s.respondJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.repo.Posts.Dashboard(r.Context(), currentUser(r))
	if err != nil {
		s.logger.Printf("dashboard error: %v", err)
		s.respondInternal(w, "Failed to load dashboard")
		return
	}
	resp := dashboardResponse{
		TotalPosts:    dash.TotalPosts,
		TotalLikes:    dash.TotalLikes,
		TotalComments: dash.TotalComments,
		RecentPosts:   make([]postStatsResponse, 0, len(dash.RecentPosts)),
	}
	for _, p := range dash.RecentPosts {
		resp.RecentPosts = append(resp.RecentPosts, postStatsResponse{
			ID:        p.ID,
			Type:      p.Type,
			Title:     p.Title,
			Likes:     p.Likes,
			Comments:  p.Comments,
			CreatedAt: p.CreatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.repo.Profiles.Get(r.Context(), currentUser(r))
	if err != nil {
		if err == repository.ErrNotFound {
			s.respondNotFound(w)
			return
		}
		s.logger.Printf("get profile error: %v", err)
		s.respondInternal(w, "Failed to load profile")
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(p))
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "displayName is required")
		return
	}
	p, err := s.repo.Profiles.Upsert(r.Context(), domain.Profile{
		ID:          currentUser(r),
		DisplayName: name,
		AvatarURL:   normalizeStringPtr(req.AvatarURL),
	})
	if err != nil {
		s.logger.Printf("upsert profile error: %v", err)
		s.respondInternal(w, "Failed to save profile")
		return
	}
	s.respondJSON(w, http.StatusOK, toProfileResponse(p))
}

func toFeedItemResponse(item domain.FeedItem) feedItemResponse {
	return feedItemResponse{
		ID:          item.ID,
		Type:        item.Type,
		UserID:      item.UserID,
		Title:       item.Title,
		Description: item.Description,
		Brand:       item.Brand,
		MediaURL:    item.MediaURL,
		Likes:       item.Likes,
		Comments:    item.Comments,
		CreatedAt:   item.CreatedAt,
	}
}

func toProfileResponse(p domain.Profile) profileResponse {
	return profileResponse{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		CreatedAt:   p.CreatedAt,
	}
}
