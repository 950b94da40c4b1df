package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/usbest/internal/domain"
)

// SurveysRepository persists surveys and their answer records.
type SurveysRepository struct {
	pool *pgxpool.Pool
}

const surveyColumns = `
    id,
    user_id,
    title,
    description,
    brand,
    media_url,
    questions,
    created_at
`

// SurveyCreateParams bundles the fields required to create a survey.
type SurveyCreateParams struct {
	UserID      string
	Title       string
	Description string
	Brand       *string
	MediaURL    *string
	Questions   []domain.Question
}

// Create inserts a new survey and returns the stored entity.
func (r *SurveysRepository) Create(ctx context.Context, params SurveyCreateParams) (domain.Survey, error) {
	questions := params.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return domain.Survey{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO surveys (user_id, title, description, brand, media_url, questions)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING %s
    `, surveyColumns)

	row := r.pool.QueryRow(ctx, query, params.UserID, params.Title, params.Description, params.Brand, params.MediaURL, questionsJSON)
	return scanSurvey(row)
}

// GetByID fetches a survey by its identifier.
func (r *SurveysRepository) GetByID(ctx context.Context, id string) (domain.Survey, error) {
	query := fmt.Sprintf(`SELECT %s FROM surveys WHERE id = $1`, surveyColumns)
	survey, err := scanSurvey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Survey{}, ErrNotFound
		}
		return domain.Survey{}, err
	}
	return survey, nil
}

// PrecomputedRows calls the get_survey_results database function. Columns are
// scanned as nullable so that incomplete rows reach the transform untouched.
func (r *SurveysRepository) PrecomputedRows(ctx context.Context, surveyID string) ([]domain.PrecomputedRow, error) {
	const query = `SELECT question, option, vote_count, total_votes FROM get_survey_results($1)`

	rows, err := r.pool.Query(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("get_survey_results: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PrecomputedRow, 0)
	for rows.Next() {
		var row domain.PrecomputedRow
		if err := rows.Scan(&row.Question, &row.Option, &row.VoteCount, &row.TotalVotes); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AnswerRecords returns every answer record submitted for a survey.
func (r *SurveysRepository) AnswerRecords(ctx context.Context, surveyID string) ([]domain.AnswerRecord, error) {
	const query = `
        SELECT survey_id, user_id, answers, created_at, updated_at
        FROM survey_responses
        WHERE survey_id = $1
        ORDER BY created_at, id
    `

	rows, err := r.pool.Query(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list survey responses: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AnswerRecord, 0)
	for rows.Next() {
		rec, err := scanAnswerRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// UpsertAnswers stores a user's answers, replacing any earlier record for the
// same survey.
func (r *SurveysRepository) UpsertAnswers(ctx context.Context, surveyID, userID string, answers []domain.Answer) error {
	_, err := r.SaveAnswers(ctx, surveyID, userID, answers)
	return err
}

// SaveAnswers is UpsertAnswers that also reports whether a new record was created.
func (r *SurveysRepository) SaveAnswers(ctx context.Context, surveyID, userID string, answers []domain.Answer) (bool, error) {
	if answers == nil {
		answers = []domain.Answer{}
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return false, err
	}

	const query = `
        INSERT INTO survey_responses (survey_id, user_id, answers)
        VALUES ($1,$2,$3)
        ON CONFLICT (survey_id, user_id)
        DO UPDATE SET answers = EXCLUDED.answers, updated_at = now()
        RETURNING (xmax = 0) AS inserted
    `

	var inserted bool
	if err := r.pool.QueryRow(ctx, query, surveyID, userID, payload).Scan(&inserted); err != nil {
		return false, fmt.Errorf("upsert survey response: %w", err)
	}
	return inserted, nil
}

// GetAnswers fetches the answer record of one user for a survey.
func (r *SurveysRepository) GetAnswers(ctx context.Context, surveyID, userID string) (domain.AnswerRecord, error) {
	const query = `
        SELECT survey_id, user_id, answers, created_at, updated_at
        FROM survey_responses
        WHERE survey_id = $1 AND user_id = $2
    `
	rec, err := scanAnswerRecord(r.pool.QueryRow(ctx, query, surveyID, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AnswerRecord{}, ErrNotFound
		}
		return domain.AnswerRecord{}, err
	}
	return rec, nil
}

func scanSurvey(row pgx.Row) (domain.Survey, error) {
	var (
		survey        domain.Survey
		questionsJSON []byte
	)
	err := row.Scan(
		&survey.ID,
		&survey.UserID,
		&survey.Title,
		&survey.Description,
		&survey.Brand,
		&survey.MediaURL,
		&questionsJSON,
		&survey.CreatedAt,
	)
	if err != nil {
		return domain.Survey{}, err
	}

	survey.Questions = []domain.Question{}
	if len(questionsJSON) > 0 {
		if err := json.Unmarshal(questionsJSON, &survey.Questions); err != nil {
			return domain.Survey{}, fmt.Errorf("decode questions of survey %s: %w", survey.ID, err)
		}
	}
	return survey, nil
}

func scanAnswerRecord(row pgx.Row) (domain.AnswerRecord, error) {
	var (
		rec     domain.AnswerRecord
		payload []byte
	)
	if err := row.Scan(&rec.SurveyID, &rec.UserID, &payload, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.AnswerRecord{}, err
	}
	rec.Answers = decodeAnswers(payload)
	return rec, nil
}

// decodeAnswers reads the stored answers leniently. A payload that is not an
// array yields no answers, and a non-string question or answer becomes empty.
func decodeAnswers(payload []byte) []domain.Answer {
	var entries []struct {
		Question json.RawMessage `json:"question"`
		Answer   json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil
	}

	answers := make([]domain.Answer, 0, len(entries))
	for _, e := range entries {
		var a domain.Answer
		_ = json.Unmarshal(e.Question, &a.Question)
		_ = json.Unmarshal(e.Answer, &a.Option)
		answers = append(answers, a)
	}
	return answers
}
