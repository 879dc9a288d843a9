// Package ingest turns uploaded question sets into assessments.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"assessment-service/internal/domain"
	"github.com/google/uuid"
)

// Columns is the row layout: question, correct answer, then three distractors.
const Columns = 5

// ParseCSV reads one question per row and validates each. Rows are rejected
// as a whole: one bad row fails the upload.
func ParseCSV(r io.Reader, title string, now time.Time) (domain.Assessment, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var questions []domain.Question
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Assessment{}, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(row) {
			continue
		}
		if len(row) != Columns {
			return domain.Assessment{}, fmt.Errorf("%w: row %d has %d columns, want %d", domain.ErrInvalidQuestion, line, len(row), Columns)
		}

		q := domain.Question{
			Text:          strings.TrimSpace(row[0]),
			CorrectAnswer: strings.TrimSpace(row[1]),
		}
		for _, d := range row[2:] {
			q.Distractors = append(q.Distractors, strings.TrimSpace(d))
		}
		if err := q.Validate(); err != nil {
			return domain.Assessment{}, fmt.Errorf("row %d: %w", line, err)
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return domain.Assessment{}, domain.ErrEmptyAssessment
	}

	return domain.Assessment{
		ID:        uuid.NewString(),
		Title:     title,
		Questions: questions,
		CreatedAt: now.UTC(),
	}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
