package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
)

// EnsureTag returns the tag with the given normalized name, creating it when
// absent. Names are normalized to trimmed lower case.
func (s *Store) EnsureTag(ctx context.Context, name string) (*domain.Tag, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return nil, fmt.Errorf("empty tag name")
	}
	tag := &domain.Tag{ID: uuid.NewString(), Name: normalized}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		tag.ID, tag.Name)
	if err != nil {
		return nil, fmt.Errorf("ensure tag %q: %w", normalized, err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, usage_count FROM tags WHERE name = ?`, normalized)
	var t domain.Tag
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.UsageCount); err != nil {
		return nil, fmt.Errorf("fetch tag %q: %w", normalized, err)
	}
	return &t, nil
}

// GetTag fetches a tag by id.
func (s *Store) GetTag(ctx context.Context, id string) (*domain.Tag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, usage_count FROM tags WHERE id = ?`, id)
	var t domain.Tag
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.UsageCount); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]*domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, usage_count FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()
	var tags []*domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// DeleteTag removes a tag by id.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete tag %s: %w", id, err)
	}
	return requireRow(res)
}

// RecomputeTagUsage recounts tag usage across items and tasks. The stored
// count is advisory only; this is the one place it is written.
func (s *Store) RecomputeTagUsage(ctx context.Context) error {
	tags, err := s.ListTags(ctx)
	if err != nil {
		return err
	}
	items, err := s.queryItems(ctx, "")
	if err != nil {
		return err
	}
	tasks, err := s.queryTasks(ctx, "")
	if err != nil {
		return err
	}
	counts := map[string]int{}
	for _, it := range items {
		for _, name := range it.Tags {
			counts[strings.ToLower(name)]++
		}
	}
	for _, t := range tasks {
		for _, name := range t.Tags {
			counts[strings.ToLower(name)]++
		}
	}
	for _, tag := range tags {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE tags SET usage_count = ? WHERE id = ?`, counts[tag.Name], tag.ID); err != nil {
			return fmt.Errorf("update usage for %q: %w", tag.Name, err)
		}
	}
	return nil
}
