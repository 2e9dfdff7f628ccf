package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
)

// CreateQuestionAnswer persists a RAG exchange.
func (s *Store) CreateQuestionAnswer(ctx context.Context, qa *domain.QuestionAnswer) error {
	if qa.ID == "" {
		qa.ID = uuid.NewString()
	}
	if qa.CreatedAt.IsZero() {
		qa.CreatedAt = s.now()
	}
	sources, err := json.Marshal(qa.Sources)
	if err != nil {
		sources = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO question_answers (id, item_id, question, answer, sources, asked_by,
			saved_as_knowledge, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		qa.ID, nullable(qa.ItemID), qa.Question, qa.Answer, string(sources),
		nullable(qa.AskedBy), boolToInt(qa.SavedAsKnowledge), formatTime(qa.CreatedAt))
	if err != nil {
		return fmt.Errorf("create question answer: %w", err)
	}
	return nil
}

// GetQuestionAnswer fetches a persisted exchange by id.
func (s *Store) GetQuestionAnswer(ctx context.Context, id string) (*domain.QuestionAnswer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, item_id, question, answer, sources, asked_by, saved_as_knowledge, created_at
		FROM question_answers WHERE id = ?`, id)
	var qa domain.QuestionAnswer
	var itemID, askedBy sql.NullString
	var sources, createdAt string
	var saved int
	if err := row.Scan(&qa.ID, &itemID, &qa.Question, &qa.Answer, &sources, &askedBy, &saved, &createdAt); err != nil {
		return nil, err
	}
	qa.ItemID = itemID.String
	qa.AskedBy = askedBy.String
	qa.SavedAsKnowledge = saved != 0
	qa.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(sources), &qa.Sources); err != nil {
		qa.Sources = nil
	}
	return &qa, nil
}

// MarkSavedAsKnowledge flags an exchange as upserted into the knowledge
// collection.
func (s *Store) MarkSavedAsKnowledge(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE question_answers SET saved_as_knowledge = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark qa saved %s: %w", id, err)
	}
	return requireRow(res)
}
