package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/thread"
)

// CreateTask inserts a task, deriving its short id from the task id. The
// 6-char space is ample, but the unique index still enforces collisions and
// the codec extends to 7 then 8 chars when one occurs.
func (s *Store) CreateTask(ctx context.Context, task *domain.Task) error {
	if task.ItemID == "" {
		return igerrors.Conflict("task requires an item")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = domain.TaskStatusNew
	}
	now := s.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	var lastErr error
	for length := thread.MinLength; length <= thread.MaxLength; length++ {
		task.ShortID = thread.ShortIDFor(task.ID, length)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks (id, title, description, status, item_id, requester_id,
				assignee_id, tags, github_issue_number, source_message_id, short_id,
				folder_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.Title, task.Description, string(task.Status), task.ItemID,
			nullable(task.RequesterID), nullable(task.AssigneeID), marshalStrings(task.Tags),
			task.GitHubIssueNumber, nullable(task.SourceMessageID), task.ShortID,
			nullable(task.FolderID), formatTime(task.CreatedAt), formatTime(task.UpdatedAt))
		if err == nil {
			return nil
		}
		lastErr = err
		if !isUniqueViolation(err, "short_id") {
			return fmt.Errorf("create task %q: %w", task.Title, err)
		}
		s.logger.Warn("short id collision for task %s at length %d, extending", task.ID, length)
	}
	return igerrors.Conflict("short id space exhausted for task %s: %v", task.ID, lastErr)
}

// UpdateTask rewrites mutable task fields and bumps updated_at.
func (s *Store) UpdateTask(ctx context.Context, task *domain.Task) error {
	if task.ItemID == "" {
		return igerrors.Conflict("task requires an item")
	}
	task.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, item_id = ?,
			requester_id = ?, assignee_id = ?, tags = ?, github_issue_number = ?,
			source_message_id = ?, folder_id = ?, updated_at = ?
		WHERE id = ?`,
		task.Title, task.Description, string(task.Status), task.ItemID,
		nullable(task.RequesterID), nullable(task.AssigneeID), marshalStrings(task.Tags),
		task.GitHubIssueNumber, nullable(task.SourceMessageID), nullable(task.FolderID),
		formatTime(task.UpdatedAt), task.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return requireRow(res)
}

// DeleteTask removes a task; comments cascade via foreign key.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return requireRow(res)
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.queryTask(ctx, "id = ?", id)
}

// GetTaskByShortID resolves a thread token to its task.
func (s *Store) GetTaskByShortID(ctx context.Context, shortID string) (*domain.Task, error) {
	return s.queryTask(ctx, "short_id = ?", strings.ToUpper(shortID))
}

// GetTaskBySourceMessage finds the task created from an external message id.
// Used for idempotent classification on poller retries.
func (s *Store) GetTaskBySourceMessage(ctx context.Context, messageID string) (*domain.Task, error) {
	return s.queryTask(ctx, "source_message_id = ?", messageID)
}

// GetTaskByIssue finds the task linked to a GitHub issue within an item.
func (s *Store) GetTaskByIssue(ctx context.Context, itemID string, issueNumber int) (*domain.Task, error) {
	return s.queryTask(ctx, "item_id = ? AND github_issue_number = ?", itemID, issueNumber)
}

// ListTasksByItem returns the tasks owned by an item.
func (s *Store) ListTasksByItem(ctx context.Context, itemID string) ([]*domain.Task, error) {
	return s.queryTasks(ctx, "WHERE item_id = ? ORDER BY created_at", itemID)
}

// ListTasksWithIssues returns tasks linked to GitHub issues for an item.
func (s *Store) ListTasksWithIssues(ctx context.Context, itemID string) ([]*domain.Task, error) {
	return s.queryTasks(ctx, "WHERE item_id = ? AND github_issue_number > 0", itemID)
}

// ListOrphanTasks returns tasks matching cleanup criteria: missing requester
// (noOwner) or dangling item reference (noItem).
func (s *Store) ListOrphanTasks(ctx context.Context, noOwner, noItem bool) ([]*domain.Task, error) {
	switch {
	case noOwner && !noItem:
		return s.queryTasks(ctx, "WHERE requester_id IS NULL OR requester_id = ''")
	case noItem && !noOwner:
		return s.queryTasks(ctx, "WHERE item_id NOT IN (SELECT id FROM items)")
	default:
		return s.queryTasks(ctx, `WHERE (requester_id IS NULL OR requester_id = '')
			OR item_id NOT IN (SELECT id FROM items)`)
	}
}

// MoveTask atomically re-homes a task under a different item.
func (s *Store) MoveTask(ctx context.Context, taskID, toItemID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM items WHERE id = ?`, toItemID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return igerrors.Conflict("target item %s does not exist", toItemID)
		}
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET item_id = ?, updated_at = ? WHERE id = ?`,
			toItemID, formatTime(s.now()), taskID)
		if err != nil {
			return fmt.Errorf("move task %s: %w", taskID, err)
		}
		return requireRow(res)
	})
}

// SetTaskFolder records the task's external store folder id.
func (s *Store) SetTaskFolder(ctx context.Context, taskID, folderID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET folder_id = ? WHERE id = ?`, folderID, taskID)
	if err != nil {
		return fmt.Errorf("set folder for task %s: %w", taskID, err)
	}
	return nil
}

func (s *Store) queryTask(ctx context.Context, where string, args ...any) (*domain.Task, error) {
	tasks, err := s.queryTasks(ctx, "WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

func (s *Store) queryTasks(ctx context.Context, clause string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, status, item_id, requester_id, assignee_id,
			tags, github_issue_number, source_message_id, short_id, folder_id,
			created_at, updated_at
		FROM tasks `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		var requesterID, assigneeID, sourceMessageID, folderID sql.NullString
		var tags, createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, (*string)(&t.Status), &t.ItemID,
			&requesterID, &assigneeID, &tags, &t.GitHubIssueNumber, &sourceMessageID,
			&t.ShortID, &folderID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.RequesterID = requesterID.String
		t.AssigneeID = assigneeID.String
		t.SourceMessageID = sourceMessageID.String
		t.FolderID = folderID.String
		t.Tags = unmarshalStrings(tags)
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
