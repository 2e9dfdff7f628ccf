package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
)

// CreateItem inserts an item after validating the parent chain for cycles.
func (s *Store) CreateItem(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = "new"
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	if err := s.checkParentChain(ctx, item.ID, item.ParentID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, title, description, parent_id, is_template, inherit_context,
			status, owner_id, tags, channel_id, source_repo, folder_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Title, item.Description, nullable(item.ParentID),
		boolToInt(item.IsTemplate), boolToInt(item.InheritContext), item.Status,
		nullable(item.OwnerID), marshalStrings(item.Tags), nullable(item.ChannelID),
		nullable(item.SourceRepo), nullable(item.FolderID), formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("create item %q: %w", item.Title, err)
	}
	return nil
}

// UpdateItem rewrites mutable item fields, re-validating the parent chain.
func (s *Store) UpdateItem(ctx context.Context, item *domain.Item) error {
	if err := s.checkParentChain(ctx, item.ID, item.ParentID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET title = ?, description = ?, parent_id = ?, is_template = ?,
			inherit_context = ?, status = ?, owner_id = ?, tags = ?, channel_id = ?,
			source_repo = ?, folder_id = ?
		WHERE id = ?`,
		item.Title, item.Description, nullable(item.ParentID), boolToInt(item.IsTemplate),
		boolToInt(item.InheritContext), item.Status, nullable(item.OwnerID),
		marshalStrings(item.Tags), nullable(item.ChannelID), nullable(item.SourceRepo),
		nullable(item.FolderID), item.ID)
	if err != nil {
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}
	return requireRow(res)
}

// GetItem fetches an item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	rows, err := s.queryItems(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// ListItems returns all non-template items.
func (s *Store) ListItems(ctx context.Context) ([]*domain.Item, error) {
	return s.queryItems(ctx, "WHERE is_template = 0 ORDER BY created_at")
}

// ListItemsByChannel returns items bound to a Teams channel.
func (s *Store) ListItemsByChannel(ctx context.Context, channelID string) ([]*domain.Item, error) {
	return s.queryItems(ctx, "WHERE channel_id = ?", channelID)
}

// ListItemsWithSourceRepo returns items configured for GitHub sync.
func (s *Store) ListItemsWithSourceRepo(ctx context.Context) ([]*domain.Item, error) {
	return s.queryItems(ctx, "WHERE source_repo IS NOT NULL AND source_repo != ''")
}

// GetItemBySourceRepo returns the item whose source repo matches owner/repo.
func (s *Store) GetItemBySourceRepo(ctx context.Context, sourceRepo string) (*domain.Item, error) {
	rows, err := s.queryItems(ctx, "WHERE source_repo = ?", sourceRepo)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// EffectiveContext returns the item's indexable body: its own description and
// tags, unioned with the parent's when inherit_context is set.
func (s *Store) EffectiveContext(ctx context.Context, item *domain.Item) (string, []string, error) {
	body := item.Description
	tags := append([]string(nil), item.Tags...)
	if item.InheritContext && item.ParentID != "" {
		parent, err := s.GetItem(ctx, item.ParentID)
		if err != nil {
			if IsNotFound(err) {
				return body, tags, nil
			}
			return "", nil, err
		}
		if parent.Description != "" {
			body = body + "\n\n" + parent.Description
		}
		seen := map[string]bool{}
		for _, t := range tags {
			seen[t] = true
		}
		for _, t := range parent.Tags {
			if !seen[t] {
				tags = append(tags, t)
			}
		}
	}
	return body, tags, nil
}

// checkParentChain walks up from parentID rejecting cycles and excessive depth.
func (s *Store) checkParentChain(ctx context.Context, itemID, parentID string) error {
	current := parentID
	for depth := 0; current != ""; depth++ {
		if depth >= domain.MaxItemDepth {
			return igerrors.Conflict("item hierarchy exceeds depth %d", domain.MaxItemDepth)
		}
		if current == itemID {
			return igerrors.Conflict("item hierarchy cycle through %s", itemID)
		}
		var next sql.NullString
		err := s.db.QueryRowContext(ctx, `SELECT parent_id FROM items WHERE id = ?`, current).Scan(&next)
		if err != nil {
			if IsNotFound(err) {
				return igerrors.Conflict("parent item %s does not exist", current)
			}
			return fmt.Errorf("walk parent chain: %w", err)
		}
		current = next.String
	}
	return nil
}

func (s *Store) queryItems(ctx context.Context, clause string, args ...any) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, parent_id, is_template, inherit_context,
			status, owner_id, tags, channel_id, source_repo, folder_id, created_at
		FROM items `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		var it domain.Item
		var parentID, ownerID, channelID, sourceRepo, folderID sql.NullString
		var isTemplate, inheritContext int
		var tags, createdAt string
		if err := rows.Scan(&it.ID, &it.Title, &it.Description, &parentID, &isTemplate,
			&inheritContext, &it.Status, &ownerID, &tags, &channelID, &sourceRepo,
			&folderID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.ParentID = parentID.String
		it.OwnerID = ownerID.String
		it.ChannelID = channelID.String
		it.SourceRepo = sourceRepo.String
		it.FolderID = folderID.String
		it.IsTemplate = isTemplate != 0
		it.InheritContext = inheritContext != 0
		it.Tags = unmarshalStrings(tags)
		it.CreatedAt = parseTime(createdAt)
		items = append(items, &it)
	}
	return items, rows.Err()
}

// SetItemFolder records the item's external store folder id.
func (s *Store) SetItemFolder(ctx context.Context, itemID, folderID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE items SET folder_id = ? WHERE id = ?`, folderID, itemID)
	if err != nil {
		return fmt.Errorf("set folder for item %s: %w", itemID, err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
