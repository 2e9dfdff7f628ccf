package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoisonThreshold marks a message as poisoned after this many failed ticks.
const PoisonThreshold = 5

// GetCursor returns the per-source poll cursor, zero when unset.
func (s *Store) GetCursor(ctx context.Context, source string) (time.Time, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor FROM poll_cursors WHERE source = ?`, source).Scan(&cursor)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cursor %s: %w", source, err)
	}
	return parseTime(cursor), nil
}

// AdvanceCursor moves the cursor forward. Moves backwards are ignored so a
// concurrent one-shot poll cannot regress the scheduled poller.
func (s *Store) AdvanceCursor(ctx context.Context, source string, to time.Time) error {
	current, err := s.GetCursor(ctx, source)
	if err != nil {
		return err
	}
	if !to.After(current) {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO poll_cursors (source, cursor) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET cursor = excluded.cursor`,
		source, formatTime(to))
	if err != nil {
		return fmt.Errorf("advance cursor %s: %w", source, err)
	}
	return nil
}

// RecordMessageFailure increments the failure counter for a source message
// and reports whether the message is now poisoned.
func (s *Store) RecordMessageFailure(ctx context.Context, source, messageID string, cause error) (bool, error) {
	causeText := ""
	if cause != nil {
		causeText = cause.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_failures (source, message_id, failures, poisoned, last_error, updated_at)
		VALUES (?, ?, 1, 0, ?, ?)
		ON CONFLICT(source, message_id) DO UPDATE SET
			failures = failures + 1,
			poisoned = CASE WHEN failures + 1 >= ? THEN 1 ELSE poisoned END,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		source, messageID, causeText, formatTime(s.now()), PoisonThreshold)
	if err != nil {
		return false, fmt.Errorf("record failure %s/%s: %w", source, messageID, err)
	}
	return s.IsPoisoned(ctx, source, messageID)
}

// IsPoisoned reports whether a message has exceeded the failure threshold.
func (s *Store) IsPoisoned(ctx context.Context, source, messageID string) (bool, error) {
	var poisoned int
	err := s.db.QueryRowContext(ctx,
		`SELECT poisoned FROM message_failures WHERE source = ? AND message_id = ?`,
		source, messageID).Scan(&poisoned)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check poison %s/%s: %w", source, messageID, err)
	}
	return poisoned != 0, nil
}

// ClearMessageFailures drops the failure record after a successful handle.
func (s *Store) ClearMessageFailures(ctx context.Context, source, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM message_failures WHERE source = ? AND message_id = ?`, source, messageID)
	if err != nil {
		return fmt.Errorf("clear failures %s/%s: %w", source, messageID, err)
	}
	return nil
}
