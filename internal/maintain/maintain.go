// Package maintain bundles the housekeeping operations behind the cleanup
// and sync-tags commands: orphan task removal, zero-use tag pruning, and
// re-upserting tagged entities into the knowledge index.
package maintain

import (
	"context"
	"fmt"
	"strings"

	"ideagraph/internal/domain"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/store"
)

// Service runs housekeeping against the store and the knowledge index.
type Service struct {
	store  *store.Store
	sync   *knowledge.Sync
	logger logging.Logger
}

// New wires a maintenance service.
func New(st *store.Store, sync *knowledge.Sync, logger logging.Logger) *Service {
	return &Service{store: st, sync: sync, logger: logging.OrNop(logger)}
}

// CleanupTasksOptions selects which orphan criteria apply. With neither flag
// set, both criteria apply.
type CleanupTasksOptions struct {
	DryRun      bool
	NoOwnerOnly bool
	NoItemOnly  bool
}

// CleanupTasks deletes tasks with no requester or a dangling item reference
// and removes their knowledge objects. It returns the affected tasks; in dry
// run nothing is deleted.
func (s *Service) CleanupTasks(ctx context.Context, opts CleanupTasksOptions) ([]*domain.Task, error) {
	noOwner, noItem := true, true
	switch {
	case opts.NoOwnerOnly && !opts.NoItemOnly:
		noItem = false
	case opts.NoItemOnly && !opts.NoOwnerOnly:
		noOwner = false
	}

	orphans, err := s.store.ListOrphanTasks(ctx, noOwner, noItem)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		s.logger.Info("cleanup-tasks: %d orphan task(s), dry run", len(orphans))
		return orphans, nil
	}

	for _, task := range orphans {
		if err := s.store.DeleteTask(ctx, task.ID); err != nil {
			return orphans, fmt.Errorf("delete task %s: %w", task.ID, err)
		}
		s.sync.DeleteTask(ctx, task.ID)
		s.logger.Info("cleanup-tasks: deleted %s (%s)", task.ShortID, task.Title)
	}
	return orphans, nil
}

// CleanupTags recomputes usage counts and deletes tags used by nothing. It
// returns the affected tags; in dry run nothing is deleted.
func (s *Service) CleanupTags(ctx context.Context, dryRun bool) ([]*domain.Tag, error) {
	if err := s.store.RecomputeTagUsage(ctx); err != nil {
		return nil, err
	}
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}

	var unused []*domain.Tag
	for _, tag := range tags {
		if tag.UsageCount > 0 {
			continue
		}
		unused = append(unused, tag)
		if dryRun {
			continue
		}
		if err := s.store.DeleteTag(ctx, tag.ID); err != nil {
			return unused, fmt.Errorf("delete tag %q: %w", tag.Name, err)
		}
		s.logger.Info("cleanup-tags: deleted %q", tag.Name)
	}
	return unused, nil
}

// SyncTags re-upserts every tagged item and task into the knowledge index,
// refreshing stale tag lists there. tagID narrows the pass to entities
// carrying that one tag; empty means all tagged entities. Returns the number
// of entities re-upserted.
func (s *Service) SyncTags(ctx context.Context, tagID string) (int, error) {
	var only string
	if tagID != "" {
		tag, err := s.store.GetTag(ctx, tagID)
		if err != nil {
			return 0, fmt.Errorf("tag %s: %w", tagID, err)
		}
		only = tag.Name
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return 0, err
	}
	synced := 0
	for _, item := range items {
		if len(item.Tags) > 0 && (only == "" || hasTag(item.Tags, only)) {
			s.sync.SyncItem(ctx, item)
			synced++
		}
		tasks, err := s.store.ListTasksByItem(ctx, item.ID)
		if err != nil {
			return synced, err
		}
		for _, task := range tasks {
			if len(task.Tags) > 0 && (only == "" || hasTag(task.Tags, only)) {
				s.sync.SyncTask(ctx, task)
				synced++
			}
		}
	}
	s.logger.Info("sync-tags: re-upserted %d entities", synced)
	return synced, nil
}

func hasTag(tags []string, name string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}
