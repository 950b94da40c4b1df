package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Clark-Hu/usbest/internal/domain"
	"github.com/Clark-Hu/usbest/internal/repository"
	"github.com/Clark-Hu/usbest/internal/results"
	"github.com/Clark-Hu/usbest/internal/survey"
)

const maxQuestionLength = 500

type surveyCreateRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Brand       *string           `json:"brand"`
	MediaURL    *string           `json:"mediaUrl"`
	Questions   []domain.Question `json:"questions"`
}

type surveyResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Brand       *string           `json:"brand,omitempty"`
	MediaURL    *string           `json:"mediaUrl,omitempty"`
	Questions   []domain.Question `json:"questions"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type answerRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type responseSubmitRequest struct {
	Answers []answerRequest `json:"answers"`
}

type responseSubmitResponse struct {
	SurveyID string           `json:"surveyId"`
	State    string           `json:"state"`
	Answers  []domain.Answer  `json:"answers"`
	Results  *resultsResponse `json:"results"`
}

type myResponseResponse struct {
	SurveyID    string          `json:"surveyId"`
	State       string          `json:"state"`
	Answers     []domain.Answer `json:"answers"`
	SubmittedAt time.Time       `json:"submittedAt"`
}

type resultsResponse struct {
	SurveyID       string                   `json:"surveyId"`
	TotalResponses int64                    `json:"totalResponses"`
	Questions      []questionResultResponse `json:"questions"`
}

type questionResultResponse struct {
	Question   string                 `json:"question"`
	TotalVotes int64                  `json:"totalVotes"`
	Options    []optionResultResponse `json:"options"`
}

type optionResultResponse struct {
	Option     string `json:"option"`
	Votes      int64  `json:"votes"`
	Percentage int    `json:"percentage"`
}

func (s *Server) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req surveyCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
		return
	}
	questions, err := validateQuestions(req.Questions)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	created, err := s.repo.Surveys.Create(r.Context(), repository.SurveyCreateParams{
		UserID:      currentUser(r),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Brand:       normalizeStringPtr(req.Brand),
		MediaURL:    normalizeStringPtr(req.MediaURL),
		Questions:   questions,
	})
	if err != nil {
		s.logger.Printf("create survey error: %v", err)
		s.respondInternal(w, "Failed to create survey")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/surveys/%s", created.ID))
	s.respondJSON(w, http.StatusCreated, toSurveyResponse(created))
}

// validateQuestions trims every question, drops blank options and rejects
// questions that are empty, repeated, too long or left without options.
func validateQuestions(in []domain.Question) ([]domain.Question, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("at least one question is required")
	}
	out := make([]domain.Question, 0, len(in))
	questions := make(map[string]int, len(in))
	for i, q := range in {
		text := strings.TrimSpace(q.Question)
		if text == "" {
			return nil, fmt.Errorf("question %d must have text", i+1)
		}
		if first, dup := questions[text]; dup {
			return nil, fmt.Errorf("question %d repeats question %d", i+1, first)
		}
		questions[text] = i + 1
		if utf8.RuneCountInString(text) > maxQuestionLength {
			return nil, fmt.Errorf("question %d exceeds %d characters", i+1, maxQuestionLength)
		}
		opts := make([]string, 0, len(q.Options))
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" || seen[opt] {
				continue
			}
			seen[opt] = true
			opts = append(opts, opt)
		}
		if len(opts) == 0 {
			return nil, fmt.Errorf("question %d needs at least one option", i+1)
		}
		out = append(out, domain.Question{Question: text, Options: opts})
	}
	return out, nil
}

func (s *Server) handleGetSurvey(w http.ResponseWriter, r *http.Request) {
	sv, ok := s.loadSurvey(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, toSurveyResponse(sv))
}

func (s *Server) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	sv, ok := s.loadSurvey(w, r)
	if !ok {
		return
	}
	userID := currentUser(r)

	if _, err := s.repo.Surveys.GetAnswers(r.Context(), sv.ID, userID); err == nil {
		s.metrics.Submission("duplicate")
		s.respondError(w, http.StatusConflict, "ALREADY_SUBMITTED", "You have already answered this survey")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Printf("check existing response for survey %s: %v", sv.ID, err)
		s.respondInternal(w, "Failed to submit response")
		return
	}

	var req responseSubmitRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	session := survey.NewSession(sv, userID, s.repo.Surveys, s.results)
	for _, a := range req.Answers {
		if strings.TrimSpace(a.Answer) == "" {
			continue
		}
		if err := session.Select(a.Question, a.Answer); err != nil {
			s.metrics.Submission("invalid")
			s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				fmt.Sprintf("%q is not an option of question %q", a.Answer, a.Question))
			return
		}
	}

	res, err := session.Submit(r.Context())
	var validationErr *survey.ValidationError
	switch {
	case errors.As(err, &validationErr):
		s.metrics.Submission("invalid")
		s.respondErrorDetails(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"Please answer all questions", map[string][]string{"unanswered": validationErr.Unanswered})
		return
	case errors.Is(err, survey.ErrSubmissionFailed):
		s.metrics.Submission("failed")
		s.logger.Printf("submit response for survey %s: %v", sv.ID, err)
		s.respondError(w, http.StatusServiceUnavailable, "SUBMISSION_FAILED", "Failed to submit response, please try again")
		return
	}
	s.metrics.Submission("ok")

	answers := answersInOrder(session)
	resp := responseSubmitResponse{
		SurveyID: sv.ID,
		State:    session.State().String(),
		Answers:  answers,
	}
	if err != nil {
		// Stored, but the results could not be loaded. The caller keeps its
		// submitted state and can fetch results later.
		s.logger.Printf("results after submit for survey %s: %v", sv.ID, err)
	} else {
		out := toResultsResponse(session.Survey(), res)
		resp.Results = &out
		s.publishResults(out)
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetMyResponse(w http.ResponseWriter, r *http.Request) {
	sv, ok := s.loadSurvey(w, r)
	if !ok {
		return
	}
	rec, err := s.repo.Surveys.GetAnswers(r.Context(), sv.ID, currentUser(r))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondNotFound(w)
			return
		}
		s.logger.Printf("load response for survey %s: %v", sv.ID, err)
		s.respondInternal(w, "Failed to load response")
		return
	}

	session := survey.NewSession(sv, rec.UserID, s.repo.Surveys, s.results)
	session.Restore(rec)
	s.respondJSON(w, http.StatusOK, myResponseResponse{
		SurveyID:    sv.ID,
		State:       session.State().String(),
		Answers:     answersInOrder(session),
		SubmittedAt: rec.UpdatedAt,
	})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sv, ok := s.loadSurvey(w, r)
	if !ok {
		return
	}
	out, err := s.loadResults(r.Context(), sv)
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "RESULTS_UNAVAILABLE", "Survey results are temporarily unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleLiveResults(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.respondNotFound(w)
		return
	}
	sv, ok := s.loadSurvey(w, r)
	if !ok {
		return
	}

	var initial []byte
	if out, err := s.loadResults(r.Context(), sv); err == nil {
		initial, _ = json.Marshal(out)
	}
	if err := s.hub.Serve(w, r, sv.ID, initial); err != nil {
		s.logger.Printf("live results upgrade for survey %s: %v", sv.ID, err)
	}
}

func (s *Server) loadSurvey(w http.ResponseWriter, r *http.Request) (domain.Survey, bool) {
	id, ok := idParam(r, "id")
	if !ok {
		s.respondNotFound(w)
		return domain.Survey{}, false
	}
	sv, err := s.repo.Surveys.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondNotFound(w)
			return domain.Survey{}, false
		}
		s.logger.Printf("fetch survey %s: %v", id, err)
		s.respondInternal(w, "Failed to load survey")
		return domain.Survey{}, false
	}
	sv.Questions = domain.NormalizeQuestions(sv.Questions)
	return sv, true
}

func (s *Server) loadResults(ctx context.Context, sv domain.Survey) (resultsResponse, error) {
	res, err := s.results.GetAggregateResults(ctx, sv.ID)
	if err != nil {
		if !errors.Is(err, results.ErrResultsUnavailable) {
			s.logger.Printf("results for survey %s: %v", sv.ID, err)
		}
		return resultsResponse{}, err
	}
	return toResultsResponse(sv, res), nil
}

func (s *Server) publishResults(out resultsResponse) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(out)
	if err != nil {
		s.logger.Printf("encode live results: %v", err)
		return
	}
	s.hub.Publish(out.SurveyID, payload)
}

func answersInOrder(session *survey.Session) []domain.Answer {
	selections := session.Selections()
	answers := make([]domain.Answer, 0, len(selections))
	for _, q := range session.Survey().Questions {
		if opt, ok := selections[q.Question]; ok {
			answers = append(answers, domain.Answer{Question: q.Question, Option: opt})
		}
	}
	return answers
}

// toResultsResponse lays the tally out in the order the survey defines its
// questions and options. Counts for questions or options the survey no
// longer defines are not reported.
func toResultsResponse(sv domain.Survey, res domain.SurveyResults) resultsResponse {
	out := resultsResponse{
		SurveyID:       sv.ID,
		TotalResponses: res.TotalResponses,
		Questions:      make([]questionResultResponse, 0, len(sv.Questions)),
	}
	for _, q := range sv.Questions {
		total := res.Denominator(q.Question)
		qr := questionResultResponse{
			Question:   q.Question,
			TotalVotes: total,
			Options:    make([]optionResultResponse, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			votes := res.Votes(q.Question, opt)
			qr.Options = append(qr.Options, optionResultResponse{
				Option:     opt,
				Votes:      votes,
				Percentage: domain.Percentage(votes, total),
			})
		}
		out.Questions = append(out.Questions, qr)
	}
	return out
}

func toSurveyResponse(sv domain.Survey) surveyResponse {
	questions := sv.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	return surveyResponse{
		ID:          sv.ID,
		UserID:      sv.UserID,
		Title:       sv.Title,
		Description: sv.Description,
		Brand:       sv.Brand,
		MediaURL:    sv.MediaURL,
		Questions:   questions,
		CreatedAt:   sv.CreatedAt,
	}
}
