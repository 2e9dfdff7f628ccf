package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
)

// AppendComment appends a comment to a task. Position is assigned as
// max(position)+1 under the same transaction, which linearizes appends
// within a task without in-process locks.
func (s *Store) AppendComment(ctx context.Context, comment *domain.TaskComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.AuthorID == "" {
		comment.AuthorID = domain.SystemAuthor
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = s.now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id = ?`, comment.TaskID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM task_comments WHERE task_id = ?`,
			comment.TaskID).Scan(&comment.Position); err != nil {
			return fmt.Errorf("next comment position: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_comments (id, task_id, author_id, body, source, direction,
				subject, message_id, in_reply_to, from_addr, to_addr, cc_addr, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			comment.ID, comment.TaskID, comment.AuthorID, comment.Body,
			string(comment.Source), nullable(string(comment.Direction)),
			nullable(comment.Subject), nullable(comment.MessageID), nullable(comment.InReplyTo),
			nullable(comment.From), nullable(comment.To), nullable(comment.CC),
			comment.Position, formatTime(comment.CreatedAt))
		if err != nil {
			return fmt.Errorf("append comment to %s: %w", comment.TaskID, err)
		}
		return nil
	})
}

// ListComments returns a task's comments in append order.
func (s *Store) ListComments(ctx context.Context, taskID string) ([]*domain.TaskComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, body, source, direction, subject, message_id,
			in_reply_to, from_addr, to_addr, cc_addr, position, created_at
		FROM task_comments WHERE task_id = ? ORDER BY position`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []*domain.TaskComment
	for rows.Next() {
		var c domain.TaskComment
		var direction, subject, messageID, inReplyTo, from, to, cc sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Body, (*string)(&c.Source),
			&direction, &subject, &messageID, &inReplyTo, &from, &to, &cc,
			&c.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Direction = domain.CommentDirection(direction.String)
		c.Subject = subject.String
		c.MessageID = messageID.String
		c.InReplyTo = inReplyTo.String
		c.From = from.String
		c.To = to.String
		c.CC = cc.String
		c.CreatedAt = parseTime(createdAt)
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// HasCommentWithMessageID reports whether a task already carries a comment
// for the given external message id. Guards duplicate appends on retried ticks.
func (s *Store) HasCommentWithMessageID(ctx context.Context, taskID, messageID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM task_comments WHERE task_id = ? AND message_id = ?`,
		taskID, messageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check comment message id: %w", err)
	}
	return count > 0, nil
}
