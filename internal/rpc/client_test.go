package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewHTTPClient(srv.URL, "anon-key", 2*time.Second, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func TestPrecomputedRows_RequestShape(t *testing.T) {
	var gotBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ProcedurePath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "anon-key" || r.Header.Get("Authorization") != "Bearer anon-key" {
			t.Errorf("missing api key headers: %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
            {"question":"Q1","option":"A","vote_count":3,"total_votes":5},
            {"question":"Q1","option":"B","vote_count":"2","total_votes":"5"}
        ]`)
	})

	rows, err := client.PrecomputedRows(context.Background(), "survey-1")
	if err != nil {
		t.Fatalf("PrecomputedRows: %v", err)
	}
	if gotBody["p_survey_id"] != "survey-1" {
		t.Fatalf("request body = %v", gotBody)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if *rows[0].VoteCount != 3 || *rows[1].VoteCount != 2 || *rows[1].TotalVotes != 5 {
		t.Fatalf("unexpected counts: %+v %+v", rows[0], rows[1])
	}
}

func TestPrecomputedRows_TolerantDecoding(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
            {"question":null,"option":7,"vote_count":"abc","total_votes":null},
            {"question":"Q","option":"A","vote_count":1e400,"total_votes":{"n":1}},
            {"question":"Q","option":"B","vote_count":2.9}
        ]`)
	})

	rows, err := client.PrecomputedRows(context.Background(), "s")
	if err != nil {
		t.Fatalf("PrecomputedRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Question != nil || rows[0].Option != nil || rows[0].VoteCount != nil || rows[0].TotalVotes != nil {
		t.Fatalf("expected all fields absent: %+v", rows[0])
	}
	if rows[1].VoteCount != nil || rows[1].TotalVotes != nil {
		t.Fatalf("expected out-of-range and object counts absent: %+v", rows[1])
	}
	if rows[2].VoteCount == nil || *rows[2].VoteCount != 2 || rows[2].TotalVotes != nil {
		t.Fatalf("unexpected third row: %+v", rows[2])
	}
}

func TestPrecomputedRows_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`},
		{"not found", http.StatusNotFound, `{"message":"function not found"}`},
		{"bad json", http.StatusOK, `{"question":`},
		{"object instead of array", http.StatusOK, `{"question":"Q"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.payload)
			})
			if _, err := client.PrecomputedRows(context.Background(), "s"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPrecomputedRows_ContextDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.PrecomputedRows(ctx, "s"); err == nil {
		t.Fatalf("expected deadline error")
	}
}

func TestNewHTTPClientRejectsRelativeURL(t *testing.T) {
	if _, err := NewHTTPClient("not a url", "k", time.Second, nil); err == nil {
		t.Fatalf("expected error for relative url")
	}
}

func TestRowDecodingNullIsAbsent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{name: "null", payload: `{"question":null,"option":null,"vote_count":null,"total_votes":null}`},
		{name: "padded null", payload: `{"question": null ,"option": null ,"vote_count": null ,"total_votes": null }`},
		{name: "empty strings", payload: `{"question":"","option":"","vote_count":"0","total_votes":0}`, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var row apiRow
			if err := json.Unmarshal([]byte(tt.payload), &row); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			present := []bool{row.Question.value != nil, row.Option.value != nil, row.VoteCount.value != nil, row.TotalVotes.value != nil}
			for i, got := range present {
				if got != tt.want {
					t.Fatalf("field %d present = %v, want %v (row %+v)", i, got, tt.want, row)
				}
			}
		})
	}
}
