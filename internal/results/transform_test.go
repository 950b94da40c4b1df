package results

import (
	"reflect"
	"testing"

	"github.com/Clark-Hu/usbest/internal/domain"
)

func str(s string) *string { return &s }
func num(n int64) *int64   { return &n }

func TestFromPrecomputed_Grouping(t *testing.T) {
	rows := []domain.PrecomputedRow{
		{Question: str("Q1"), Option: str("A"), VoteCount: num(3), TotalVotes: num(10)},
		{Question: str("Q1"), Option: str("B"), VoteCount: num(7), TotalVotes: num(10)},
		{Question: str("Q2"), Option: str("X"), VoteCount: num(5), TotalVotes: num(10)},
	}

	got := FromPrecomputed(rows)
	want := domain.SurveyResults{
		TotalResponses: 10,
		Questions: map[string]domain.QuestionResult{
			"Q1": {TotalVotes: 10, Options: map[string]int64{"A": 3, "B": 7}},
			"Q2": {TotalVotes: 10, Options: map[string]int64{"X": 5}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromPrecomputed = %+v, want %+v", got, want)
	}
}

func TestFromPrecomputed_MissingData(t *testing.T) {
	rows := []domain.PrecomputedRow{
		{Question: str("Q1"), Option: str("A"), VoteCount: nil, TotalVotes: num(6)},
		{Question: str("Q1"), Option: str("B"), VoteCount: num(-4)},
		{Question: nil, Option: str("C"), VoteCount: num(1)},
		{Question: str("   "), Option: str("D"), VoteCount: num(1)},
		{Question: str("Q2"), Option: nil, VoteCount: num(9)},
		{Question: str(" Q3 "), Option: str(" "), VoteCount: num(2), TotalVotes: num(4)},
	}

	got := FromPrecomputed(rows)
	if got.TotalResponses != 6 {
		t.Fatalf("TotalResponses = %d, want 6", got.TotalResponses)
	}
	q1 := got.Questions["Q1"]
	if q1.Options["A"] != 0 || q1.Options["B"] != 0 {
		t.Fatalf("missing/negative counts not coerced: %+v", q1.Options)
	}
	if len(q1.Options) != 2 {
		t.Fatalf("Q1 options = %+v, want A and B", q1.Options)
	}
	if q2, ok := got.Questions["Q2"]; !ok || len(q2.Options) != 0 || q2.TotalVotes != 6 {
		t.Fatalf("Q2 = %+v, ok=%v, want empty options with total 6", q2, ok)
	}
	if q3 := got.Questions["Q3"]; q3.TotalVotes != 4 || len(q3.Options) != 0 {
		t.Fatalf("Q3 = %+v, want row-level total 4 and no options", q3)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("questions = %v, want Q1, Q2, Q3", got.Questions)
	}
}

func TestFromPrecomputed_RowTotalOverridesQuestion(t *testing.T) {
	rows := []domain.PrecomputedRow{
		{Question: str("Q1"), Option: str("A"), VoteCount: num(2), TotalVotes: num(10)},
		{Question: str("Q2"), Option: str("X"), VoteCount: num(1)},
		{Question: str("Q2"), Option: str("Y"), VoteCount: num(2), TotalVotes: num(3)},
	}
	got := FromPrecomputed(rows)
	if got.TotalResponses != 10 {
		t.Fatalf("TotalResponses = %d, want 10", got.TotalResponses)
	}
	if got.Questions["Q1"].TotalVotes != 10 {
		t.Fatalf("Q1 total = %d, want 10", got.Questions["Q1"].TotalVotes)
	}
	if got.Questions["Q2"].TotalVotes != 3 {
		t.Fatalf("Q2 total = %d, want 3", got.Questions["Q2"].TotalVotes)
	}
}

func TestFromPrecomputed_Empty(t *testing.T) {
	for _, rows := range [][]domain.PrecomputedRow{nil, {}} {
		got := FromPrecomputed(rows)
		if got.TotalResponses != 0 || got.Questions == nil || len(got.Questions) != 0 {
			t.Fatalf("FromPrecomputed(%v) = %+v, want empty", rows, got)
		}
	}
}

func TestFromRecords_Scenario(t *testing.T) {
	records := []domain.AnswerRecord{
		{UserID: "u1", Answers: []domain.Answer{{Question: "Q1", Option: "Yes"}, {Question: "Q2", Option: "Red"}}},
		{UserID: "u2", Answers: []domain.Answer{{Question: "Q1", Option: "No"}}},
	}

	got := FromRecords(records)
	want := domain.SurveyResults{
		TotalResponses: 2,
		Questions: map[string]domain.QuestionResult{
			"Q1": {TotalVotes: 2, Options: map[string]int64{"Yes": 1, "No": 1}},
			"Q2": {TotalVotes: 2, Options: map[string]int64{"Red": 1}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FromRecords = %+v, want %+v", got, want)
	}
}

func TestFromRecords_SkipsBlankPairs(t *testing.T) {
	records := []domain.AnswerRecord{
		{UserID: "u1", Answers: []domain.Answer{{Question: "  ", Option: "Yes"}, {Question: "Q1", Option: "\t"}}},
		{UserID: "u2", Answers: nil},
		{UserID: "u3", Answers: []domain.Answer{{Question: " Q1 ", Option: " Yes "}}},
	}

	got := FromRecords(records)
	if got.TotalResponses != 3 {
		t.Fatalf("TotalResponses = %d, want 3", got.TotalResponses)
	}
	if len(got.Questions) != 1 {
		t.Fatalf("questions = %+v, want only Q1", got.Questions)
	}
	q1 := got.Questions["Q1"]
	if q1.TotalVotes != 3 || q1.Options["Yes"] != 1 || len(q1.Options) != 1 {
		t.Fatalf("Q1 = %+v, want totalVotes 3 and Yes=1", q1)
	}
}

func TestFromRecords_MatchesHandTally(t *testing.T) {
	options := []string{"A", "B", "C"}
	var records []domain.AnswerRecord
	want := map[string]map[string]int64{"Q1": {}, "Q2": {}}
	for i := 0; i < 30; i++ {
		rec := domain.AnswerRecord{UserID: string(rune('a' + i))}
		o1 := options[i%3]
		rec.Answers = append(rec.Answers, domain.Answer{Question: "Q1", Option: o1})
		want["Q1"][o1]++
		if i%4 != 0 {
			o2 := options[(i*7)%3]
			rec.Answers = append(rec.Answers, domain.Answer{Question: "Q2", Option: o2})
			want["Q2"][o2]++
		}
		records = append(records, rec)
	}

	got := FromRecords(records)
	for q, opts := range want {
		if got.Questions[q].TotalVotes != 30 {
			t.Fatalf("%s total = %d, want 30", q, got.Questions[q].TotalVotes)
		}
		if !reflect.DeepEqual(got.Questions[q].Options, opts) {
			t.Fatalf("%s options = %v, want %v", q, got.Questions[q].Options, opts)
		}
	}
}

func TestTransformsAreDeterministic(t *testing.T) {
	records := []domain.AnswerRecord{
		{Answers: []domain.Answer{{Question: "Q1", Option: "Yes"}, {Question: "Q2", Option: "Red"}}},
		{Answers: []domain.Answer{{Question: "Q1", Option: "No"}}},
	}
	if a, b := FromRecords(records), FromRecords(records); !reflect.DeepEqual(a, b) {
		t.Fatalf("FromRecords not idempotent: %+v vs %+v", a, b)
	}

	rows := []domain.PrecomputedRow{
		{Question: str("Q1"), Option: str("A"), VoteCount: num(3), TotalVotes: num(10)},
	}
	if a, b := FromPrecomputed(rows), FromPrecomputed(rows); !reflect.DeepEqual(a, b) {
		t.Fatalf("FromPrecomputed not idempotent: %+v vs %+v", a, b)
	}
}

func FuzzFromRecords(f *testing.F) {
	f.Add("Q1", "Yes", "Q2", "")
	f.Add("", "", " ", "\t")

	f.Fuzz(func(t *testing.T, q1, o1, q2, o2 string) {
		records := []domain.AnswerRecord{
			{Answers: []domain.Answer{{Question: q1, Option: o1}, {Question: q2, Option: o2}}},
			{Answers: []domain.Answer{{Question: q2, Option: o1}}},
		}
		got := FromRecords(records)
		if got.TotalResponses != 2 {
			t.Fatalf("TotalResponses = %d, want 2", got.TotalResponses)
		}
		for q, qr := range got.Questions {
			if q == "" || qr.TotalVotes != 2 {
				t.Fatalf("bad question %q: %+v", q, qr)
			}
			for o, n := range qr.Options {
				if o == "" || n <= 0 || n > 3 {
					t.Fatalf("bad option %q=%d", o, n)
				}
			}
		}
	})
}
