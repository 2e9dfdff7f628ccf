// Package store is the durable home of the domain entities. It is backed by
// SQLite (pure-Go driver) and is the single writer of domain state; pollers
// and request handlers coordinate through short transactions here, never
// through in-process locks. No method holds a transaction across a network
// call.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ideagraph/internal/logging"
)

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// Open initializes the database at path, creating the schema when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logging.NewComponentLogger("store"), now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	login TEXT NOT NULL UNIQUE,
	email TEXT,
	display_name TEXT,
	auth_kind TEXT NOT NULL,
	external_object_id TEXT,
	role TEXT NOT NULL DEFAULT 'user',
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_external ON users(external_object_id);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parent_id TEXT REFERENCES items(id),
	is_template INTEGER NOT NULL DEFAULT 0,
	inherit_context INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'new',
	owner_id TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	channel_id TEXT,
	source_repo TEXT,
	folder_id TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_channel ON items(channel_id);
CREATE INDEX IF NOT EXISTS idx_items_repo ON items(source_repo);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'new',
	item_id TEXT NOT NULL REFERENCES items(id),
	requester_id TEXT,
	assignee_id TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	github_issue_number INTEGER NOT NULL DEFAULT 0,
	source_message_id TEXT,
	short_id TEXT NOT NULL UNIQUE,
	folder_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_item ON tasks(item_id);
CREATE INDEX IF NOT EXISTS idx_tasks_source_msg ON tasks(source_message_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_item_issue
	ON tasks(item_id, github_issue_number) WHERE github_issue_number > 0;

CREATE TABLE IF NOT EXISTS task_comments (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	author_id TEXT NOT NULL,
	body TEXT NOT NULL,
	source TEXT NOT NULL,
	direction TEXT,
	subject TEXT,
	message_id TEXT,
	in_reply_to TEXT,
	from_addr TEXT,
	to_addr TEXT,
	cc_addr TEXT,
	position INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_comments_task ON task_comments(task_id);

CREATE TABLE IF NOT EXISTS item_files (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES items(id),
	filename TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	content_type TEXT,
	remote_id TEXT,
	remote_url TEXT,
	uploader_id TEXT,
	indexed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_item ON item_files(item_id);

CREATE TABLE IF NOT EXISTS milestones (
	id TEXT PRIMARY KEY,
	item_id TEXT NOT NULL REFERENCES items(id),
	name TEXT NOT NULL,
	due_date TEXT,
	status TEXT NOT NULL DEFAULT 'open',
	description TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS milestone_contexts (
	id TEXT PRIMARY KEY,
	milestone_id TEXT NOT NULL REFERENCES milestones(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	proposed_tasks TEXT NOT NULL DEFAULT '[]',
	analyzed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS question_answers (
	id TEXT PRIMARY KEY,
	item_id TEXT,
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources TEXT NOT NULL DEFAULT '[]',
	asked_by TEXT,
	saved_as_knowledge INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	usage_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS poll_cursors (
	source TEXT PRIMARY KEY,
	cursor TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS message_failures (
	source TEXT NOT NULL,
	message_id TEXT NOT NULL,
	failures INTEGER NOT NULL DEFAULT 0,
	poisoned INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (source, message_id)
);
`

// timeFormat keeps timestamps lexicographically sortable in SQLite.
const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalStrings(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil
	}
	return values
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = sql.ErrNoRows

// IsNotFound reports whether err indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
