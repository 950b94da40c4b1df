package results

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Clark-Hu/usbest/internal/domain"
	"github.com/Clark-Hu/usbest/internal/metrics"
)

var (
	// ErrAggregateUnavailable marks a precomputed aggregate that failed or was
	// empty. The aggregator recovers from it and never returns it.
	ErrAggregateUnavailable = errors.New("results: precomputed aggregate unavailable")
	// ErrResultsUnavailable is returned when no source could produce results.
	// Callers should report it as a retryable failure.
	ErrResultsUnavailable = errors.New("results: survey results unavailable")
)

// RowFetcher loads a server-side aggregate as flattened rows.
type RowFetcher interface {
	PrecomputedRows(ctx context.Context, surveyID string) ([]domain.PrecomputedRow, error)
}

// RecordFetcher loads every raw answer record of a survey.
type RecordFetcher interface {
	AnswerRecords(ctx context.Context, surveyID string) ([]domain.AnswerRecord, error)
}

// Source produces survey results from one kind of backing data.
type Source interface {
	Name() string
	Load(ctx context.Context, surveyID string) (domain.SurveyResults, error)
}

// PrecomputedSource reads the server-side aggregate. An empty aggregate is
// reported as ErrAggregateUnavailable so that it is never mistaken for zero votes.
type PrecomputedSource struct {
	Rows RowFetcher
}

// Name implements Source.
func (s PrecomputedSource) Name() string { return "precomputed" }

// Load implements Source.
func (s PrecomputedSource) Load(ctx context.Context, surveyID string) (domain.SurveyResults, error) {
	rows, err := s.Rows.PrecomputedRows(ctx, surveyID)
	if err != nil {
		return domain.SurveyResults{}, fmt.Errorf("%w: %w", ErrAggregateUnavailable, err)
	}
	if len(rows) == 0 {
		return domain.SurveyResults{}, fmt.Errorf("%w: no rows", ErrAggregateUnavailable)
	}
	return FromPrecomputed(rows), nil
}

// RecordSource tallies raw answer records. Zero records is a valid, empty result.
type RecordSource struct {
	Records RecordFetcher
}

// Name implements Source.
func (s RecordSource) Name() string { return "raw" }

// Load implements Source.
func (s RecordSource) Load(ctx context.Context, surveyID string) (domain.SurveyResults, error) {
	records, err := s.Records.AnswerRecords(ctx, surveyID)
	if err != nil {
		return domain.SurveyResults{}, err
	}
	return FromRecords(records), nil
}

// Options configures an Aggregator.
type Options struct {
	// StepTimeout bounds each source attempt. Zero means no extra deadline.
	StepTimeout time.Duration
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

// Aggregator tries its sources in order and returns the first success. Every
// source but the last is best effort: its failures are logged and skipped.
type Aggregator struct {
	sources []Source
	opts    Options
	logger  *log.Logger
}

// New builds an aggregator preferring the precomputed aggregate and falling
// back to raw records. rows may be nil when no precomputed aggregate exists.
func New(rows RowFetcher, records RecordFetcher, opts Options) *Aggregator {
	sources := make([]Source, 0, 2)
	if rows != nil {
		sources = append(sources, PrecomputedSource{Rows: rows})
	}
	sources = append(sources, RecordSource{Records: records})
	return NewChain(opts, sources...)
}

// NewChain builds an aggregator over an explicit list of sources.
func NewChain(opts Options, sources ...Source) *Aggregator {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{sources: sources, opts: opts, logger: logger}
}

// GetAggregateResults returns the vote tally for a survey. An unknown survey
// and a survey without answers both yield the empty result. The only error is
// one wrapping ErrResultsUnavailable.
func (a *Aggregator) GetAggregateResults(ctx context.Context, surveyID string) (domain.SurveyResults, error) {
	if len(a.sources) == 0 {
		a.opts.Metrics.ResultsUnavailable()
		return domain.SurveyResults{}, fmt.Errorf("%w: no sources configured", ErrResultsUnavailable)
	}

	var lastErr error
	for i, src := range a.sources {
		res, err := a.load(ctx, src, surveyID)
		if err == nil {
			a.opts.Metrics.ResultsServed(src.Name())
			return res, nil
		}
		lastErr = err
		if i < len(a.sources)-1 {
			a.opts.Metrics.Fallback(fallbackReason(err))
			a.logger.Printf("results: %s source failed for survey %s, falling back: %v", src.Name(), surveyID, err)
		}
	}

	a.opts.Metrics.ResultsUnavailable()
	a.logger.Printf("results: no source produced results for survey %s: %v", surveyID, lastErr)
	return domain.SurveyResults{}, fmt.Errorf("%w: %w", ErrResultsUnavailable, lastErr)
}

func (a *Aggregator) load(ctx context.Context, src Source, surveyID string) (domain.SurveyResults, error) {
	if a.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.StepTimeout)
		defer cancel()
	}
	res, err := src.Load(ctx, surveyID)
	if err != nil {
		return domain.SurveyResults{}, err
	}
	if res.Questions == nil {
		res.Questions = map[string]domain.QuestionResult{}
	}
	return res, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrAggregateUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
