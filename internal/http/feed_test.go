package httpserver

import (
	"encoding/base64"
	"math"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/Clark-Hu/usbest/internal/domain"
)

func TestBuildFeedFilters(t *testing.T) {
	cursor := base64.StdEncoding.EncodeToString([]byte(`{"createdAt":"2024-05-01T10:00:00Z","id":"` + uuid.NewString() + `"}`))
	values := url.Values{}
	values.Set("type", "remix")
	values.Set("limit", " 15 ")
	values.Set("cursor", cursor)

	filters, err := buildFeedFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Type == nil || *filters.Type != domain.ContentRemix {
		t.Fatalf("type not parsed: %+v", filters.Type)
	}
	if filters.Limit != 15 {
		t.Fatalf("limit not parsed: %d", filters.Limit)
	}
	if filters.Cursor == nil || filters.Cursor.CreatedAt.IsZero() {
		t.Fatalf("cursor not parsed: %+v", filters.Cursor)
	}
}

func TestBuildFeedFilters_Invalid(t *testing.T) {
	badID := base64.StdEncoding.EncodeToString([]byte(`{"createdAt":"2024-05-01T10:00:00Z","id":"x"}`))
	tests := []url.Values{
		{"type": {"video"}},
		{"limit": {"abc"}},
		{"cursor": {"%%%"}},
		{"cursor": {badID}},
	}
	for _, values := range tests {
		if _, err := buildFeedFilters(values); err == nil {
			t.Fatalf("expected error for %v", values)
		}
	}
}

func TestValidateQuestions(t *testing.T) {
	got, err := validateQuestions([]domain.Question{
		{Question: "  Size? ", Options: []string{" S", "M ", "", "S"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Question != "Size?" || len(got[0].Options) != 2 || got[0].Options[1] != "M" {
		t.Fatalf("questions not normalized: %+v", got)
	}

	if _, err := validateQuestions(nil); err == nil {
		t.Fatalf("expected error for no questions")
	}

	_, err = validateQuestions([]domain.Question{
		{Question: "Color?", Options: []string{"Red"}},
		{Question: " Color?  ", Options: []string{"Red", "Blue"}},
	})
	if err == nil || !strings.Contains(err.Error(), "question 2 repeats question 1") {
		t.Fatalf("repeated question error = %v", err)
	}
}

func TestToResultsResponse_FollowsSurveyOrder(t *testing.T) {
	sv := domain.Survey{
		ID: "s1",
		Questions: []domain.Question{
			{Question: "Q2", Options: []string{"b", "a"}},
			{Question: "Q1", Options: []string{"x"}},
		},
	}
	res := domain.SurveyResults{
		TotalResponses: 4,
		Questions: map[string]domain.QuestionResult{
			"Q2":    {TotalVotes: 3, Options: map[string]int64{"a": 2, "b": 1, "gone": 5}},
			"Stale": {TotalVotes: 4, Options: map[string]int64{"z": 4}},
		},
	}

	out := toResultsResponse(sv, res)
	if len(out.Questions) != 2 || out.Questions[0].Question != "Q2" || out.Questions[1].Question != "Q1" {
		t.Fatalf("unexpected question order: %+v", out.Questions)
	}
	q2 := out.Questions[0]
	if q2.Options[0].Option != "b" || q2.Options[0].Percentage != 33 || q2.Options[1].Percentage != 67 {
		t.Fatalf("unexpected Q2 options: %+v", q2.Options)
	}
	// Q1 has no votes, so its denominator falls back to the response count.
	q1 := out.Questions[1]
	if q1.TotalVotes != 4 || q1.Options[0].Votes != 0 || q1.Options[0].Percentage != 0 {
		t.Fatalf("unexpected Q1: %+v", q1)
	}
}

func TestRoundToOneDecimal(t *testing.T) {
	tests := []struct {
		name  string
		value float32
		want  float32
	}{
		{"zero", 0, 0},
		{"round-up", 3.75, 3.8},
		{"round-down", 2.74, 2.7},
		{"exact", 4.5, 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundToOneDecimal(tt.value)
			if math.Abs(float64(got-tt.want)) > 0.0001 {
				t.Fatalf("roundToOneDecimal(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
