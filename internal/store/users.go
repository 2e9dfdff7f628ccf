package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
)

// CreateUser inserts a user row. ID is generated when empty.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = "user"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, login, email, display_name, auth_kind, external_object_id, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Login, nullable(user.Email), nullable(user.DisplayName),
		string(user.AuthKind), nullable(user.ExternalObjectID), user.Role,
		boolToInt(user.Active), formatTime(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user %s: %w", user.Login, err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.queryUser(ctx, "id = ?", id)
}

// GetUserByLogin fetches a user by login name.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*domain.User, error) {
	return s.queryUser(ctx, "login = ?", login)
}

// GetUserByExternalID fetches a user by external object id.
func (s *Store) GetUserByExternalID(ctx context.Context, objectID string) (*domain.User, error) {
	return s.queryUser(ctx, "external_object_id = ?", objectID)
}

// GetUserByEmail fetches a user by normalized (lower-cased) email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.queryUser(ctx, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

// SetUserExternalID patches the external object id onto an existing row.
func (s *Store) SetUserExternalID(ctx context.Context, userID, objectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET external_object_id = ? WHERE id = ?`, objectID, userID)
	if err != nil {
		return fmt.Errorf("patch external id for %s: %w", userID, err)
	}
	return nil
}

func (s *Store) queryUser(ctx context.Context, where string, args ...any) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, login, email, display_name, auth_kind, external_object_id, role, active, created_at
		FROM users WHERE `+where, args...)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var email, displayName, objectID sql.NullString
	var active int
	var createdAt string
	err := row.Scan(&u.ID, &u.Login, &email, &displayName, (*string)(&u.AuthKind), &objectID, &u.Role, &active, &createdAt)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.DisplayName = displayName.String
	u.ExternalObjectID = objectID.String
	u.Active = active != 0
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
