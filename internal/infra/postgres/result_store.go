package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"assessment-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists assessment results. The (assessment_id, user_id)
// unique index makes CreateResult an upsert, so a user keeps one result per
// assessment even when a retake purge failed.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) FindResults(ctx context.Context, assessmentID, userID string) ([]domain.AssessmentResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assessment_id, user_id, score, total_questions, completed_at, answers
		 FROM assessment_results WHERE assessment_id=$1 AND user_id=$2 ORDER BY completed_at`,
		assessmentID, userID)
	if err != nil {
		return nil, fmt.Errorf("find results: %w", err)
	}
	defer rows.Close()

	var results []domain.AssessmentResult
	for rows.Next() {
		var (
			r   domain.AssessmentResult
			raw []byte
		)
		if err := rows.Scan(&r.ID, &r.AssessmentID, &r.UserID, &r.Score, &r.TotalQuestions, &r.CompletedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(raw, &r.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *ResultStore) DeleteResult(ctx context.Context, resultID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assessment_results WHERE id=$1`, resultID)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResultNotFound
	}
	return nil
}

func (s *ResultStore) CreateResult(ctx context.Context, r domain.AssessmentResult) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	answers := r.Answers
	if answers == nil {
		answers = []string{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("marshal answers: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO assessment_results (id, assessment_id, user_id, score, total_questions, completed_at, answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		 ON CONFLICT (assessment_id, user_id) DO UPDATE SET
		   id=EXCLUDED.id, score=EXCLUDED.score, total_questions=EXCLUDED.total_questions,
		   completed_at=EXCLUDED.completed_at, answers=EXCLUDED.answers
		 RETURNING id`,
		r.ID, r.AssessmentID, r.UserID, r.Score, r.TotalQuestions, r.CompletedAt, string(raw),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create result: %w", err)
	}
	return id, nil
}
