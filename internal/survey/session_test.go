package survey

import (
	"context"
	"errors"
	"testing"

	"github.com/Clark-Hu/usbest/internal/domain"
	"github.com/Clark-Hu/usbest/internal/results"
)

type fakeWriter struct {
	err     error
	calls   int
	answers []domain.Answer
	during  func()
}

func (f *fakeWriter) UpsertAnswers(ctx context.Context, surveyID, userID string, answers []domain.Answer) error {
	f.calls++
	f.answers = answers
	if f.during != nil {
		f.during()
	}
	return f.err
}

type fakeReader struct {
	res    domain.SurveyResults
	err    error
	calls  int
	during func()
}

func (f *fakeReader) GetAggregateResults(ctx context.Context, surveyID string) (domain.SurveyResults, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	return f.res, f.err
}

func testSurvey() domain.Survey {
	return domain.Survey{
		ID:    "s1",
		Title: "Colours",
		Questions: []domain.Question{
			{Question: "Q1", Options: []string{"Yes", "No"}},
			{Question: " Q2 ", Options: []string{"Red", "Blue", " "}},
			{Question: "   ", Options: []string{"ignored"}},
		},
	}
}

func TestSubmit_ValidationFailure(t *testing.T) {
	w := &fakeWriter{}
	r := &fakeReader{}
	s := NewSession(testSurvey(), "u1", w, r)

	if err := s.Select("Q1", "Yes"); err != nil {
		t.Fatalf("select: %v", err)
	}

	_, err := s.Submit(context.Background())
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("error should wrap ErrValidationFailed")
	}
	if len(vErr.Unanswered) != 1 || vErr.Unanswered[0] != "Q2" {
		t.Fatalf("unanswered = %v, want [Q2]", vErr.Unanswered)
	}
	if w.calls != 0 || r.calls != 0 {
		t.Fatalf("no network call expected, writer=%d reader=%d", w.calls, r.calls)
	}
	if s.State() != NotSubmitted {
		t.Fatalf("state = %v, want not_submitted", s.State())
	}
	if s.Selections()["Q1"] != "Yes" {
		t.Fatalf("selection lost: %v", s.Selections())
	}
}

func TestSubmit_Success(t *testing.T) {
	want := domain.SurveyResults{TotalResponses: 1, Questions: map[string]domain.QuestionResult{
		"Q1": {TotalVotes: 1, Options: map[string]int64{"No": 1}},
	}}
	w := &fakeWriter{}
	r := &fakeReader{res: want}
	s := NewSession(testSurvey(), "u1", w, r)

	var loadingDuringFetch bool
	var stateDuringWrite State
	w.during = func() { stateDuringWrite = s.State() }
	r.during = func() { loadingDuringFetch = s.ResultsLoading() }

	mustSelect(t, s, "Q1", "No")
	mustSelect(t, s, "Q2", " Blue ")

	got, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.TotalResponses != 1 {
		t.Fatalf("results = %+v", got)
	}
	if stateDuringWrite != Submitting {
		t.Fatalf("state during write = %v, want submitting", stateDuringWrite)
	}
	if !loadingDuringFetch {
		t.Fatalf("ResultsLoading should be true while fetching")
	}
	if s.ResultsLoading() {
		t.Fatalf("ResultsLoading should be false after fetch")
	}
	if s.State() != Submitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
	if r.calls != 1 {
		t.Fatalf("reader calls = %d, want 1", r.calls)
	}
	if len(w.answers) != 2 || w.answers[0] != (domain.Answer{Question: "Q1", Option: "No"}) || w.answers[1] != (domain.Answer{Question: "Q2", Option: "Blue"}) {
		t.Fatalf("answers written = %+v", w.answers)
	}

	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit error = %v, want ErrAlreadySubmitted", err)
	}
	if err := s.Select("Q1", "Yes"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("select after submit error = %v, want ErrAlreadySubmitted", err)
	}
}

func TestSubmit_WriteFailureKeepsSelections(t *testing.T) {
	w := &fakeWriter{err: errors.New("connection reset")}
	r := &fakeReader{}
	s := NewSession(testSurvey(), "u1", w, r)
	mustSelect(t, s, "Q1", "Yes")
	mustSelect(t, s, "Q2", "Red")

	_, err := s.Submit(context.Background())
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("error = %v, want ErrSubmissionFailed", err)
	}
	if s.State() != NotSubmitted {
		t.Fatalf("state = %v, want not_submitted", s.State())
	}
	if r.calls != 0 {
		t.Fatalf("results must not be fetched after a failed write")
	}
	if sel := s.Selections(); sel["Q1"] != "Yes" || sel["Q2"] != "Red" {
		t.Fatalf("selections lost: %v", sel)
	}

	w.err = nil
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if s.State() != Submitted {
		t.Fatalf("state after retry = %v, want submitted", s.State())
	}
}

func TestSubmit_ResultsFailureStaysSubmitted(t *testing.T) {
	w := &fakeWriter{}
	r := &fakeReader{err: results.ErrResultsUnavailable}
	s := NewSession(testSurvey(), "u1", w, r)
	mustSelect(t, s, "Q1", "Yes")
	mustSelect(t, s, "Q2", "Red")

	_, err := s.Submit(context.Background())
	if !errors.Is(err, results.ErrResultsUnavailable) {
		t.Fatalf("error = %v, want ErrResultsUnavailable", err)
	}
	if s.State() != Submitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
	if s.ResultsLoading() {
		t.Fatalf("ResultsLoading should be cleared")
	}
}

func TestSubmit_InProgressRejectsChanges(t *testing.T) {
	w := &fakeWriter{}
	s := NewSession(testSurvey(), "u1", w, &fakeReader{})
	mustSelect(t, s, "Q1", "Yes")
	mustSelect(t, s, "Q2", "Red")

	var submitErr, selectErr error
	w.during = func() {
		_, submitErr = s.Submit(context.Background())
		selectErr = s.Select("Q1", "No")
	}
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !errors.Is(submitErr, ErrSubmitInProgress) {
		t.Fatalf("nested submit error = %v, want ErrSubmitInProgress", submitErr)
	}
	if !errors.Is(selectErr, ErrSubmitInProgress) {
		t.Fatalf("select during submit error = %v, want ErrSubmitInProgress", selectErr)
	}
	if w.calls != 1 {
		t.Fatalf("writer calls = %d, want 1", w.calls)
	}
	if w.answers[0].Option != "Yes" {
		t.Fatalf("answers changed during submit: %+v", w.answers)
	}
}

func TestSubmit_RepeatedQuestionAnsweredOnce(t *testing.T) {
	w := &fakeWriter{}
	sv := domain.Survey{ID: "dup", Questions: []domain.Question{
		{Question: "Color?", Options: []string{"Red", "Blue"}},
		{Question: " Color? ", Options: []string{"Red"}},
	}}
	s := NewSession(sv, "u1", w, &fakeReader{res: domain.NewSurveyResults()})
	mustSelect(t, s, "Color?", "Red")

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(w.answers) != 1 || w.answers[0] != (domain.Answer{Question: "Color?", Option: "Red"}) {
		t.Fatalf("answers written = %+v, want one", w.answers)
	}
}

func TestSelect_UnknownQuestionOrOption(t *testing.T) {
	s := NewSession(testSurvey(), "u1", &fakeWriter{}, &fakeReader{})
	if err := s.Select("Q9", "Yes"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("error = %v, want ErrUnknownQuestion", err)
	}
	if err := s.Select("Q1", "Maybe"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("error = %v, want ErrUnknownQuestion", err)
	}
}

func TestRestore(t *testing.T) {
	s := NewSession(testSurvey(), "u1", &fakeWriter{}, &fakeReader{})
	s.Restore(domain.AnswerRecord{SurveyID: "s1", UserID: "u1", Answers: []domain.Answer{
		{Question: "Q1", Option: "No"},
		{Question: "", Option: "x"},
	}})
	if s.State() != Submitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
	if sel := s.Selections(); len(sel) != 1 || sel["Q1"] != "No" {
		t.Fatalf("selections = %v", sel)
	}
}

func TestSubmit_NoQuestions(t *testing.T) {
	w := &fakeWriter{}
	s := NewSession(domain.Survey{ID: "empty"}, "u1", w, &fakeReader{res: domain.NewSurveyResults()})
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(w.answers) != 0 {
		t.Fatalf("answers = %v, want none", w.answers)
	}
}

func mustSelect(t *testing.T, s *Session, q, o string) {
	t.Helper()
	if err := s.Select(q, o); err != nil {
		t.Fatalf("Select(%q, %q): %v", q, o, err)
	}
}
