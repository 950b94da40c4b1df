// Package rpc calls the hosted database's remote procedure endpoint that
// serves the precomputed survey aggregate.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// ProcedurePath is the endpoint of the aggregate procedure relative to the base URL.
const ProcedurePath = "/rest/v1/rpc/get_survey_results"

// HTTPClient fetches precomputed aggregate rows over HTTP.
type HTTPClient struct {
	endpoint *url.URL
	apiKey   string
	client   *http.Client
	logger   *log.Logger
}

// NewHTTPClient constructs a new HTTP-backed aggregate client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse aggregate rpc url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("aggregate rpc url %q must be absolute", baseURL)
	}
	return &HTTPClient{
		endpoint: parsed.ResolveReference(&url.URL{Path: parsed.Path + ProcedurePath}),
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// PrecomputedRows calls get_survey_results for one survey.
func (c *HTTPClient) PrecomputedRows(ctx context.Context, surveyID string) ([]domain.PrecomputedRow, error) {
	body, err := json.Marshal(map[string]string{"p_survey_id": surveyID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Printf("rpc: unexpected status %d for survey %s: %s", resp.StatusCode, surveyID, strings.TrimSpace(string(snippet)))
		return nil, fmt.Errorf("rpc: upstream returned %d", resp.StatusCode)
	}

	var payload []apiRow
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode aggregate response: %w", err)
	}
	return convertRows(payload), nil
}

type apiRow struct {
	Question   text  `json:"question"`
	Option     text  `json:"option"`
	VoteCount  count `json:"vote_count"`
	TotalVotes count `json:"total_votes"`
}

// count accepts a JSON number, a numeric string or anything else. Values that
// are not finite numbers are left unset.
type count struct {
	value *int64
}

func (c *count) UnmarshalJSON(data []byte) error {
	c.value = nil
	if isNull(data) {
		return nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	n := int64(f)
	c.value = &n
	return nil
}

// text accepts a JSON string and treats every other value as absent.
type text struct {
	value *string
}

func (t *text) UnmarshalJSON(data []byte) error {
	t.value = nil
	if isNull(data) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.value = &s
	}
	return nil
}

// isNull reports a JSON null, which json.Unmarshal would otherwise accept as
// the zero value.
func isNull(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

func convertRows(payload []apiRow) []domain.PrecomputedRow {
	rows := make([]domain.PrecomputedRow, 0, len(payload))
	for _, r := range payload {
		rows = append(rows, domain.PrecomputedRow{
			Question:   r.Question.value,
			Option:     r.Option.value,
			VoteCount:  r.VoteCount.value,
			TotalVotes: r.TotalVotes.value,
		})
	}
	return rows
}
