package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
)

// CreateMilestone inserts a milestone.
func (s *Store) CreateMilestone(ctx context.Context, m *domain.Milestone) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = "open"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	var due any
	if m.DueDate != nil {
		due = formatTime(*m.DueDate)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO milestones (id, item_id, name, due_date, status, description, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ItemID, m.Name, due, m.Status, m.Description, m.Summary, formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("create milestone %q: %w", m.Name, err)
	}
	return nil
}

// GetMilestone fetches a milestone by id.
func (s *Store) GetMilestone(ctx context.Context, id string) (*domain.Milestone, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, item_id, name, due_date, status, description, summary, created_at
		FROM milestones WHERE id = ?`, id)
	var m domain.Milestone
	var due sql.NullString
	var createdAt string
	if err := row.Scan(&m.ID, &m.ItemID, &m.Name, &due, &m.Status, &m.Description, &m.Summary, &createdAt); err != nil {
		return nil, err
	}
	if due.Valid {
		t := parseTime(due.String)
		m.DueDate = &t
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// UpdateMilestoneSummary stores the agent-recomputed aggregated summary.
func (s *Store) UpdateMilestoneSummary(ctx context.Context, id, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE milestones SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("update milestone summary %s: %w", id, err)
	}
	return requireRow(res)
}

// CreateMilestoneContext inserts a context object awaiting analysis.
func (s *Store) CreateMilestoneContext(ctx context.Context, c *domain.MilestoneContextObject) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	proposed, err := json.Marshal(c.ProposedTasks)
	if err != nil {
		proposed = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO milestone_contexts (id, milestone_id, kind, title, content, summary,
			proposed_tasks, analyzed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MilestoneID, string(c.Kind), c.Title, c.Content, c.Summary,
		string(proposed), boolToInt(c.Analyzed), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create milestone context %q: %w", c.Title, err)
	}
	return nil
}

// GetMilestoneContext fetches a context object by id.
func (s *Store) GetMilestoneContext(ctx context.Context, id string) (*domain.MilestoneContextObject, error) {
	contexts, err := s.queryMilestoneContexts(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(contexts) == 0 {
		return nil, ErrNotFound
	}
	return contexts[0], nil
}

// ListMilestoneContexts returns all context objects of a milestone, oldest
// first.
func (s *Store) ListMilestoneContexts(ctx context.Context, milestoneID string) ([]*domain.MilestoneContextObject, error) {
	return s.queryMilestoneContexts(ctx, "WHERE milestone_id = ? ORDER BY created_at", milestoneID)
}

// ListUnanalyzedContexts returns context objects awaiting agent analysis.
func (s *Store) ListUnanalyzedContexts(ctx context.Context, milestoneID string) ([]*domain.MilestoneContextObject, error) {
	return s.queryMilestoneContexts(ctx, "WHERE milestone_id = ? AND analyzed = 0 ORDER BY created_at", milestoneID)
}

// SaveContextAnalysis stores the summary and proposed tasks and marks the
// context analyzed.
func (s *Store) SaveContextAnalysis(ctx context.Context, id, summary string, proposed []domain.ProposedTask) error {
	data, err := json.Marshal(proposed)
	if err != nil {
		data = []byte("[]")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE milestone_contexts SET summary = ?, proposed_tasks = ?, analyzed = 1 WHERE id = ?`,
		summary, string(data), id)
	if err != nil {
		return fmt.Errorf("save context analysis %s: %w", id, err)
	}
	return requireRow(res)
}

func (s *Store) queryMilestoneContexts(ctx context.Context, clause string, args ...any) ([]*domain.MilestoneContextObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, milestone_id, kind, title, content, summary, proposed_tasks, analyzed, created_at
		FROM milestone_contexts `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query milestone contexts: %w", err)
	}
	defer rows.Close()

	var contexts []*domain.MilestoneContextObject
	for rows.Next() {
		var c domain.MilestoneContextObject
		var proposed, createdAt string
		var analyzed int
		if err := rows.Scan(&c.ID, &c.MilestoneID, (*string)(&c.Kind), &c.Title, &c.Content,
			&c.Summary, &proposed, &analyzed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan milestone context: %w", err)
		}
		if err := json.Unmarshal([]byte(proposed), &c.ProposedTasks); err != nil {
			c.ProposedTasks = nil
		}
		c.Analyzed = analyzed != 0
		c.CreatedAt = parseTime(createdAt)
		contexts = append(contexts, &c)
	}
	return contexts, rows.Err()
}
