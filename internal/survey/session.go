package survey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Clark-Hu/usbest/internal/domain"
)

var (
	// ErrValidationFailed is wrapped by ValidationError.
	ErrValidationFailed = errors.New("survey: unanswered questions")
	// ErrSubmissionFailed means the answers could not be stored. Selections
	// are kept and the session can submit again.
	ErrSubmissionFailed = errors.New("survey: submission failed")
	// ErrAlreadySubmitted is returned when changing a submitted session.
	ErrAlreadySubmitted = errors.New("survey: already submitted")
	// ErrSubmitInProgress is returned when a submission is already running.
	ErrSubmitInProgress = errors.New("survey: submission in progress")
	// ErrUnknownQuestion is returned when selecting an option the survey does not offer.
	ErrUnknownQuestion = errors.New("survey: unknown question or option")
)

// ValidationError lists the questions still missing a selection.
type ValidationError struct {
	Unanswered []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("survey: %d unanswered question(s): %s", len(e.Unanswered), strings.Join(e.Unanswered, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// State is the position of a session in the submission flow.
type State int

const (
	NotSubmitted State = iota
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case NotSubmitted:
		return "not_submitted"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// AnswerWriter stores a user's answers, replacing any earlier record for the
// same (survey, user).
type AnswerWriter interface {
	UpsertAnswers(ctx context.Context, surveyID, userID string, answers []domain.Answer) error
}

// ResultsReader loads the aggregate results of a survey.
type ResultsReader interface {
	GetAggregateResults(ctx context.Context, surveyID string) (domain.SurveyResults, error)
}

// Session follows one user answering one survey:
// NotSubmitted -> Submitting -> Submitted. Submitted is terminal.
type Session struct {
	mu             sync.Mutex
	survey         domain.Survey
	userID         string
	writer         AnswerWriter
	reader         ResultsReader
	selections     map[string]string
	state          State
	resultsLoading bool
	results        domain.SurveyResults
}

// NewSession starts a session with no selections. Questions are normalized so
// blank questions and options are never required.
func NewSession(s domain.Survey, userID string, writer AnswerWriter, reader ResultsReader) *Session {
	s.Questions = domain.NormalizeQuestions(s.Questions)
	return &Session{
		survey:     s,
		userID:     userID,
		writer:     writer,
		reader:     reader,
		selections: make(map[string]string),
		results:    domain.NewSurveyResults(),
	}
}

// Restore marks the session submitted with the answers already on record.
func (s *Session) Restore(rec domain.AnswerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range rec.Answers {
		if a.Question != "" && a.Option != "" {
			s.selections[a.Question] = a.Option
		}
	}
	s.state = Submitted
}

// Select records the chosen option for a question.
func (s *Session) Select(question, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Submitted:
		return ErrAlreadySubmitted
	case Submitting:
		return ErrSubmitInProgress
	}
	option = strings.TrimSpace(option)
	q, ok := s.question(question)
	if !ok || !q.HasOption(option) {
		return fmt.Errorf("%w: %q -> %q", ErrUnknownQuestion, question, option)
	}
	s.selections[q.Question] = option
	return nil
}

// Unanswered returns the questions without a selection, in survey order.
func (s *Session) Unanswered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unanswered()
}

// Submit validates and stores the selections, then loads the results once.
// A validation failure changes nothing. A write failure returns the session
// to NotSubmitted with its selections intact. When the write succeeds but the
// results cannot be loaded the session stays Submitted and the error wraps
// the reader's failure.
func (s *Session) Submit(ctx context.Context) (domain.SurveyResults, error) {
	s.mu.Lock()
	switch s.state {
	case Submitted:
		s.mu.Unlock()
		return domain.SurveyResults{}, ErrAlreadySubmitted
	case Submitting:
		s.mu.Unlock()
		return domain.SurveyResults{}, ErrSubmitInProgress
	}
	if missing := s.unanswered(); len(missing) > 0 {
		s.mu.Unlock()
		return domain.SurveyResults{}, &ValidationError{Unanswered: missing}
	}
	answers := make([]domain.Answer, 0, len(s.survey.Questions))
	for _, q := range s.survey.Questions {
		answers = append(answers, domain.Answer{Question: q.Question, Option: s.selections[q.Question]})
	}
	s.state = Submitting
	s.mu.Unlock()

	if err := s.writer.UpsertAnswers(ctx, s.survey.ID, s.userID, answers); err != nil {
		s.mu.Lock()
		s.state = NotSubmitted
		s.mu.Unlock()
		return domain.SurveyResults{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	s.mu.Lock()
	s.state = Submitted
	s.resultsLoading = true
	s.mu.Unlock()

	res, err := s.reader.GetAggregateResults(ctx, s.survey.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resultsLoading = false
	if err != nil {
		return domain.SurveyResults{}, err
	}
	s.results = res
	return res, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ResultsLoading reports whether a results fetch is running.
func (s *Session) ResultsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultsLoading
}

// Selections returns a copy of the current selections.
func (s *Session) Selections() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.selections))
	for k, v := range s.selections {
		out[k] = v
	}
	return out
}

// Results returns the last loaded results.
func (s *Session) Results() domain.SurveyResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Survey returns the normalized survey.
func (s *Session) Survey() domain.Survey {
	return s.survey
}

func (s *Session) question(text string) (domain.Question, bool) {
	text = strings.TrimSpace(text)
	for _, q := range s.survey.Questions {
		if q.Question == text {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (s *Session) unanswered() []string {
	var missing []string
	for _, q := range s.survey.Questions {
		if s.selections[q.Question] == "" {
			missing = append(missing, q.Question)
		}
	}
	return missing
}
