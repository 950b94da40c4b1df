package results

import (
	"strings"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// FromPrecomputed groups flattened aggregate rows into SurveyResults. Rows
// without a question or option are skipped; missing or negative counts are 0.
func FromPrecomputed(rows []domain.PrecomputedRow) domain.SurveyResults {
	out := domain.NewSurveyResults()
	if len(rows) == 0 {
		return out
	}
	out.TotalResponses = count(rows[0].TotalVotes)

	for _, row := range rows {
		question := trimmed(row.Question)
		if question == "" {
			continue
		}
		qr, ok := out.Questions[question]
		if !ok {
			qr = domain.QuestionResult{TotalVotes: out.TotalResponses, Options: map[string]int64{}}
		}
		// Per-question denominators may differ when answer rates differ.
		if row.TotalVotes != nil {
			qr.TotalVotes = count(row.TotalVotes)
		}
		if option := trimmed(row.Option); option != "" {
			qr.Options[option] = count(row.VoteCount)
		}
		out.Questions[question] = qr
	}
	return out
}

// FromRecords tallies raw answer records. Every record counts toward the
// survey total and toward every question's denominator, whether or not it
// answered that question.
func FromRecords(records []domain.AnswerRecord) domain.SurveyResults {
	out := domain.NewSurveyResults()
	total := int64(len(records))
	out.TotalResponses = total

	for _, rec := range records {
		for _, ans := range rec.Answers {
			question := strings.TrimSpace(ans.Question)
			option := strings.TrimSpace(ans.Option)
			if question == "" || option == "" {
				continue
			}
			qr, ok := out.Questions[question]
			if !ok {
				qr = domain.QuestionResult{TotalVotes: total, Options: map[string]int64{}}
				out.Questions[question] = qr
			}
			qr.Options[option]++
		}
	}
	return out
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func count(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
