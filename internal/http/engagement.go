package httpserver

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/usbest/internal/domain"
	"github.com/Clark-Hu/usbest/internal/repository"
)

const maxCommentLength = 1000

type engagementResponse struct {
	Likes    int64 `json:"likes"`
	Comments int64 `json:"comments"`
	IsLiked  bool  `json:"isLiked"`
}

type likeResponse struct {
	Liked bool  `json:"liked"`
	Likes int64 `json:"likes"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Text        string    `json:"text"`
	DisplayName *string   `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

type reviewResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Rating      int       `json:"rating"`
	Text        string    `json:"text"`
	DisplayName *string   `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

type reviewListResponse struct {
	Average float32          `json:"average"`
	Count   int64            `json:"count"`
	Items   []reviewResponse `json:"items"`
}

// contentTarget resolves {type}/{id} to an existing post, answering 404 otherwise.
func (s *Server) contentTarget(w http.ResponseWriter, r *http.Request) (domain.ContentType, string, bool) {
	contentType, err := domain.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		s.respondNotFound(w)
		return "", "", false
	}
	id, ok := idParam(r, "id")
	if !ok {
		s.respondNotFound(w)
		return "", "", false
	}
	exists, err := s.repo.Posts.Exists(r.Context(), contentType, id)
	if err != nil {
		s.logger.Printf("lookup %s %s: %v", contentType, id, err)
		s.respondInternal(w, "Failed to load content")
		return "", "", false
	}
	if !exists {
		s.respondNotFound(w)
		return "", "", false
	}
	return contentType, id, true
}

func (s *Server) handleGetEngagement(w http.ResponseWriter, r *http.Request) {
	contentType, id, ok := s.contentTarget(w, r)
	if !ok {
		return
	}
	e, err := s.repo.Engagement.Engagement(r.Context(), contentType, id, currentUser(r))
	if err != nil {
		s.logger.Printf("engagement %s %s: %v", contentType, id, err)
		s.respondInternal(w, "Failed to load engagement")
		return
	}
	s.respondJSON(w, http.StatusOK, engagementResponse{Likes: e.Likes, Comments: e.Comments, IsLiked: e.IsLiked})
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	contentType, id, ok := s.contentTarget(w, r)
	if !ok {
		return
	}
	userID := currentUser(r)
	liked, err := s.repo.Engagement.ToggleLike(r.Context(), userID, contentType, id)
	if err != nil {
		s.logger.Printf("toggle like %s %s: %v", contentType, id, err)
		s.respondInternal(w, "Failed to update like")
		return
	}
	e, err := s.repo.Engagement.Engagement(r.Context(), contentType, id, userID)
	if err != nil {
		s.logger.Printf("engagement %s %s: %v", contentType, id, err)
		s.respondInternal(w, "Failed to update like")
		return
	}
	s.respondJSON(w, http.StatusOK, likeResponse{Liked: liked, Likes: e.Likes})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	contentType, id, ok := s.contentTarget(w, r)
	if !ok {
		return
	}
	limit := 0
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
			return
		}
		limit = n
	}
	comments, err := s.repo.Engagement.ListComments(r.Context(), contentType, id, limit)
	if err != nil {
		s.logger.Printf("list comments %s %s: %v", contentType, id, err)
		s.respondInternal(w, "Failed to load comments")
		return
	}
	items := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		items = append(items, toCommentResponse(c))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	contentType, id, ok := s.contentTarget(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required")
		return
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text exceeds 1000 characters")
		return
	}

	c, err := s.repo.Engagement.CreateComment(r.Context(), repository.CommentCreateParams{
		UserID:      currentUser(r),
		ContentType: contentType,
		ContentID:   id,
		Text:        text,
	})
	if err != nil {
		s.logger.Printf("create comment %s %s: %v", contentType, id, err)
		s.respondInternal(w, "Failed to post comment")
		return
	}
	s.respondJSON(w, http.StatusCreated, toCommentResponse(c))
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	adID, ok := s.adTarget(w, r)
	if !ok {
		return
	}
	resp, err := s.loadReviews(r.Context(), adID)
	if err != nil {
		s.logger.Printf("reviews for ad %s: %v", adID, err)
		s.respondInternal(w, "Failed to load reviews")
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) loadReviews(ctx context.Context, adID string) (reviewListResponse, error) {
	summary, err := s.repo.Reviews.Summary(ctx, adID)
	if err != nil {
		return reviewListResponse{}, fmt.Errorf("summary: %w", err)
	}
	reviews, err := s.repo.Reviews.List(ctx, adID)
	if err != nil {
		return reviewListResponse{}, fmt.Errorf("list: %w", err)
	}
	resp := reviewListResponse{
		Average: roundToOneDecimal(summary.Average),
		Count:   summary.Count,
		Items:   make([]reviewResponse, 0, len(reviews)),
	}
	for _, rv := range reviews {
		resp.Items = append(resp.Items, toReviewResponse(rv))
	}
	return resp, nil
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	adID, ok := s.adTarget(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rating must be between 1 and 5")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required")
		return
	}

	rv, err := s.repo.Reviews.Create(r.Context(), repository.ReviewCreateParams{
		AdID:   adID,
		UserID: currentUser(r),
		Rating: req.Rating,
		Text:   text,
	})
	if err != nil {
		if err == repository.ErrConflict {
			s.respondError(w, http.StatusConflict, "ALREADY_REVIEWED", "You have already reviewed this ad")
			return
		}
		s.logger.Printf("create review %s: %v", adID, err)
		s.respondInternal(w, "Failed to post review")
		return
	}
	s.respondJSON(w, http.StatusCreated, toReviewResponse(rv))
}

func (s *Server) adTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := idParam(r, "id")
	if !ok {
		s.respondNotFound(w)
		return "", false
	}
	exists, err := s.repo.Posts.Exists(r.Context(), domain.ContentAd, id)
	if err != nil {
		s.logger.Printf("lookup ad %s: %v", id, err)
		s.respondInternal(w, "Failed to load ad")
		return "", false
	}
	if !exists {
		s.respondNotFound(w)
		return "", false
	}
	return id, true
}

func toCommentResponse(c domain.Comment) commentResponse {
	return commentResponse{
		ID:          c.ID,
		UserID:      c.UserID,
		Text:        c.Text,
		DisplayName: c.DisplayName,
		AvatarURL:   c.AvatarURL,
		CreatedAt:   c.CreatedAt,
	}
}

func toReviewResponse(rv domain.Review) reviewResponse {
	return reviewResponse{
		ID:          rv.ID,
		UserID:      rv.UserID,
		Rating:      rv.Rating,
		Text:        rv.Text,
		DisplayName: rv.DisplayName,
		CreatedAt:   rv.CreatedAt,
	}
}

func roundToOneDecimal(value float32) float32 {
	return float32(math.Round(float64(value)*10) / 10.0)
}
