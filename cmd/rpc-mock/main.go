package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
)

// aggregateRow mirrors one row returned by get_survey_results.
type aggregateRow struct {
	Question   string `json:"question"`
	Option     string `json:"option"`
	VoteCount  int64  `json:"vote_count"`
	TotalVotes int64  `json:"total_votes"`
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "mock-aggregates.json", "path to mock data file keyed by survey id")
		apiKey  = flag.String("key", "", "require this value in the apikey header")
		logReqs = flag.Bool("log", false, "enable request logging")
	)
	flag.Parse()

	file, err := os.ReadFile(*data)
	if err != nil {
		log.Fatalf("read mock data: %v", err)
	}

	var payload map[string][]aggregateRow
	if err := json.Unmarshal(file, &payload); err != nil {
		log.Fatalf("parse mock data: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v1/rpc/get_survey_results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		if *apiKey != "" && r.Header.Get("apikey") != *apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		var args struct {
			SurveyID string `json:"p_survey_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if *logReqs {
			log.Printf("get_survey_results %s", args.SurveyID)
		}

		rows := payload[args.SurveyID]
		if rows == nil {
			rows = []aggregateRow{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	log.Printf("mock aggregate rpc listening on %s (%d surveys)", addr, len(payload))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
