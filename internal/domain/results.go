package domain

import "math"

// PrecomputedRow is one flattened row of a server-side survey aggregate.
// Every field may be absent.
type PrecomputedRow struct {
	Question   *string `json:"question"`
	Option     *string `json:"option"`
	VoteCount  *int64  `json:"vote_count"`
	TotalVotes *int64  `json:"total_votes"`
}

// QuestionResult tallies votes per option for one question. The option counts
// need not add up to TotalVotes.
type QuestionResult struct {
	TotalVotes int64            `json:"totalVotes"`
	Options    map[string]int64 `json:"options"`
}

// SurveyResults is the aggregate of all answers to a survey. It is recomputed
// on every request and never stored.
type SurveyResults struct {
	TotalResponses int64                     `json:"totalResponses"`
	Questions      map[string]QuestionResult `json:"questionResults"`
}

// NewSurveyResults returns the empty aggregate.
func NewSurveyResults() SurveyResults {
	return SurveyResults{Questions: map[string]QuestionResult{}}
}

// Denominator returns the vote total used for percentages of a question,
// falling back to the survey-wide response count when nobody answered it.
func (r SurveyResults) Denominator(question string) int64 {
	if q, ok := r.Questions[question]; ok {
		return q.TotalVotes
	}
	return r.TotalResponses
}

// Votes returns the vote count of an option, zero when absent.
func (r SurveyResults) Votes(question, option string) int64 {
	q, ok := r.Questions[question]
	if !ok {
		return 0
	}
	return q.Options[option]
}

// Percentage rounds votes/total to a whole percent; a zero total yields 0.
func Percentage(votes, total int64) int {
	if total <= 0 || votes <= 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}
