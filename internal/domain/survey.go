package domain

import (
	"strings"
	"time"
)

// Question is a single multiple-choice question of a survey.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Survey is a user-authored set of questions attached to a content post.
type Survey struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Brand       *string
	MediaURL    *string
	Questions   []Question
	CreatedAt   time.Time
}

// Answer is one selected option for one question.
type Answer struct {
	Question string `json:"question"`
	Option   string `json:"answer"`
}

// AnswerRecord holds one respondent's answers for a survey. A user has at most
// one record per survey; resubmission replaces it.
type AnswerRecord struct {
	SurveyID  string
	UserID    string
	Answers   []Answer
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeQuestions trims question and option text and drops empty entries,
// keeping the authored order. Question text is the results key, so only the
// first question with a given text is kept.
func NormalizeQuestions(questions []Question) []Question {
	out := make([]Question, 0, len(questions))
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		text := strings.TrimSpace(q.Question)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		opts := make([]string, 0, len(q.Options))
		for _, opt := range q.Options {
			if opt = strings.TrimSpace(opt); opt != "" {
				opts = append(opts, opt)
			}
		}
		out = append(out, Question{Question: text, Options: opts})
	}
	return out
}

// HasOption reports whether option is one of the question's choices.
func (q Question) HasOption(option string) bool {
	for _, opt := range q.Options {
		if opt == option {
			return true
		}
	}
	return false
}
