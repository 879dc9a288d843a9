package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AssessmentStore loads and saves assessments; questions live in a JSONB column.
type AssessmentStore struct {
	pool *pgxpool.Pool
}

func NewAssessmentStore(pool *pgxpool.Pool) *AssessmentStore {
	return &AssessmentStore{pool: pool}
}

func (s *AssessmentStore) LoadAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error) {
	var (
		a   domain.Assessment
		raw []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, questions, created_at FROM assessments WHERE id=$1`, assessmentID,
	).Scan(&a.ID, &a.Title, &raw, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assessment{}, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("load assessment: %w", err)
	}
	if err := json.Unmarshal(raw, &a.Questions); err != nil {
		return domain.Assessment{}, fmt.Errorf("unmarshal questions: %w", err)
	}
	return a, nil
}

func (s *AssessmentStore) ListAssessments(ctx context.Context) ([]domain.AssessmentSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, jsonb_array_length(questions), created_at FROM assessments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var list []domain.AssessmentSummary
	for rows.Next() {
		var sum domain.AssessmentSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.QuestionCount, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		list = append(list, sum)
	}
	return list, rows.Err()
}

// SaveAssessment inserts or replaces an assessment.
func (s *AssessmentStore) SaveAssessment(ctx context.Context, a domain.Assessment) error {
	raw, err := json.Marshal(a.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO assessments (id, title, questions, created_at) VALUES ($1, $2, $3::jsonb, $4)
		 ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, questions=EXCLUDED.questions`,
		a.ID, a.Title, string(raw), createdAt)
	if err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}
