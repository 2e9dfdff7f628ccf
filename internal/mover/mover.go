// Package mover relocates a task between items, dragging the task's folder
// in the external document library along with it.
package mover

import (
	"context"
	"fmt"

	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/store"
	"ideagraph/internal/thread"
)

// Drive is the slice of the Graph client the mover needs.
type Drive interface {
	EnsureFolder(ctx context.Context, parentID, name string) (*msgraph.DriveItem, error)
	MoveItem(ctx context.Context, itemID, newParentID, newName string) error
}

// Mailer sends the optional move notification.
type Mailer interface {
	SendMail(ctx context.Context, mailbox, to, subject, body string, headers map[string]string) error
}

// Mover moves tasks between items.
type Mover struct {
	store   *store.Store
	drive   Drive
	sync    *knowledge.Sync
	mailer  Mailer
	mailbox string
	logger  logging.Logger
}

// New creates a mover. drive and mailer may be nil: a nil drive skips the
// external folder move, a nil mailer disables notifications.
func New(st *store.Store, drive Drive, sync *knowledge.Sync, mailer Mailer, mailbox string, logger logging.Logger) *Mover {
	return &Mover{
		store:   st,
		drive:   drive,
		sync:    sync,
		mailer:  mailer,
		mailbox: mailbox,
		logger:  logging.OrNop(logger),
	}
}

// Move re-homes the task under toItemID. The external folder moves first;
// a failure after the folder move but before the database update is logged
// as critical with both ids for manual reconciliation. notifyTo, when
// non-empty, receives a summary mail after a successful move.
func (m *Mover) Move(ctx context.Context, taskID, toItemID, notifyTo string) (*domain.Task, error) {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task.ItemID == toItemID {
		return nil, igerrors.Conflict("task %s is already in item %s", taskID, toItemID)
	}
	target, err := m.store.GetItem(ctx, toItemID)
	if err != nil {
		return nil, fmt.Errorf("load target item %s: %w", toItemID, err)
	}

	folderMoved := false
	if m.drive != nil && task.FolderID != "" {
		targetFolderID, err := m.ensureItemFolder(ctx, target)
		if err != nil {
			return nil, err
		}
		if err := m.moveTaskFolder(ctx, task, targetFolderID); err != nil {
			return nil, err
		}
		folderMoved = true
	}

	if err := m.store.MoveTask(ctx, taskID, toItemID); err != nil {
		if folderMoved {
			m.logger.Critical("task %s folder moved under item %s but database update failed, manual reconciliation required: %v",
				taskID, toItemID, err)
		}
		return nil, fmt.Errorf("move task %s: %w", taskID, err)
	}

	task.ItemID = toItemID
	if m.sync != nil {
		m.sync.SyncTask(ctx, task)
	}

	if notifyTo != "" && m.mailer != nil {
		subject := thread.FormatSubject("Task moved: "+task.Title, task.ShortID)
		body := fmt.Sprintf("The task %q was moved to item %q.", task.Title, target.Title)
		if err := m.mailer.SendMail(ctx, m.mailbox, notifyTo, subject, body, nil); err != nil {
			m.logger.Warn("move notification for task %s failed: %v", taskID, err)
		}
	}
	return task, nil
}

// ensureItemFolder resolves or creates the target item's root folder and
// records its id on the item.
func (m *Mover) ensureItemFolder(ctx context.Context, item *domain.Item) (string, error) {
	if item.FolderID != "" {
		return item.FolderID, nil
	}
	folder, err := m.drive.EnsureFolder(ctx, "", FolderName(item.Title))
	if err != nil {
		return "", fmt.Errorf("ensure folder for item %s: %w", item.ID, err)
	}
	if err := m.store.SetItemFolder(ctx, item.ID, folder.ID); err != nil {
		return "", err
	}
	item.FolderID = folder.ID
	return folder.ID, nil
}

// moveTaskFolder uses the drive's native move. A name conflict in the target
// root is retried once with a short-id suffix.
func (m *Mover) moveTaskFolder(ctx context.Context, task *domain.Task, targetFolderID string) error {
	err := m.drive.MoveItem(ctx, task.FolderID, targetFolderID, "")
	if err == nil {
		return nil
	}
	if status := igerrors.HTTPStatus(err); status == 409 {
		renamed := WithSuffix(FolderName(task.Title), task.ShortID)
		if retryErr := m.drive.MoveItem(ctx, task.FolderID, targetFolderID, renamed); retryErr == nil {
			m.logger.Info("task %s folder renamed to %q to resolve a name conflict", task.ID, renamed)
			return nil
		}
	}
	return fmt.Errorf("move folder of task %s: %w", task.ID, err)
}
