package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ideagraph/internal/domain"
)

// CreateFile inserts an item file record.
func (s *Store) CreateFile(ctx context.Context, file *domain.ItemFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_files (id, item_id, filename, size, content_type, remote_id,
			remote_url, uploader_id, indexed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.ItemID, file.Filename, file.Size, nullable(file.ContentType),
		nullable(file.RemoteID), nullable(file.RemoteURL), nullable(file.UploaderID),
		boolToInt(file.Indexed), formatTime(file.CreatedAt))
	if err != nil {
		return fmt.Errorf("create file %q: %w", file.Filename, err)
	}
	return nil
}

// MarkFileIndexed flips the indexed flag after chunk upserts succeed.
func (s *Store) MarkFileIndexed(ctx context.Context, fileID string, indexed bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE item_files SET indexed = ? WHERE id = ?`,
		boolToInt(indexed), fileID)
	if err != nil {
		return fmt.Errorf("mark file %s indexed: %w", fileID, err)
	}
	return nil
}

// GetFile fetches a file record by id.
func (s *Store) GetFile(ctx context.Context, id string) (*domain.ItemFile, error) {
	files, err := s.queryFiles(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNotFound
	}
	return files[0], nil
}

// ListFilesByItem returns an item's files.
func (s *Store) ListFilesByItem(ctx context.Context, itemID string) ([]*domain.ItemFile, error) {
	return s.queryFiles(ctx, "WHERE item_id = ? ORDER BY created_at", itemID)
}

// DeleteFile removes the file row. Remote file and knowledge chunks are the
// caller's responsibility (see the upload service).
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM item_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return requireRow(res)
}

func (s *Store) queryFiles(ctx context.Context, clause string, args ...any) ([]*domain.ItemFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, filename, size, content_type, remote_id, remote_url,
			uploader_id, indexed, created_at
		FROM item_files `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []*domain.ItemFile
	for rows.Next() {
		var f domain.ItemFile
		var contentType, remoteID, remoteURL, uploaderID sql.NullString
		var indexed int
		var createdAt string
		if err := rows.Scan(&f.ID, &f.ItemID, &f.Filename, &f.Size, &contentType,
			&remoteID, &remoteURL, &uploaderID, &indexed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.ContentType = contentType.String
		f.RemoteID = remoteID.String
		f.RemoteURL = remoteURL.String
		f.UploaderID = uploaderID.String
		f.Indexed = indexed != 0
		f.CreatedAt = parseTime(createdAt)
		files = append(files, &f)
	}
	return files, rows.Err()
}
