package knowledge

import (
	"context"
	"fmt"

	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	"ideagraph/internal/logging"
	"ideagraph/internal/metrics"
	"ideagraph/internal/store"
)

// Sync mirrors domain mutations into the knowledge index. Index failures
// are logged and swallowed: SQLite stays the source of truth, and a
// re-sync repairs the index because every object id is deterministic.
type Sync struct {
	store   *store.Store
	index   Index
	baseURL string
	logger  logging.Logger
}

// NewSync wires the sync layer. index may be nil when the vector index is
// disabled; every method then degrades to a no-op.
func NewSync(st *store.Store, index Index, baseURL string, logger logging.Logger) *Sync {
	return &Sync{
		store:   st,
		index:   index,
		baseURL: baseURL,
		logger:  logging.OrNop(logger),
	}
}

// NewIndexFromSettings builds the configured Index backend. Local mode needs
// direct LLM access for embeddings; without it the index is disabled and nil
// is returned with no error.
func NewIndexFromSettings(vi config.VectorIndexSettings, llm config.LLMDirectSettings) (Index, error) {
	switch vi.Mode {
	case config.VectorIndexCloud:
		return NewCloudIndex(CloudConfig{URL: vi.URL, APIKey: vi.Key})
	case config.VectorIndexLocal, "":
		if !llm.Enabled {
			return nil, nil
		}
		embedder, err := NewEmbedder(EmbedderConfig{
			Model:   llm.DefaultModel,
			APIKey:  llm.Key,
			BaseURL: llm.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		return NewLocalIndex(LocalConfig{PersistPath: vi.Path}, embedder.Func())
	default:
		return nil, fmt.Errorf("unknown vector index mode %q", vi.Mode)
	}
}

// Enabled reports whether an index backend is wired.
func (s *Sync) Enabled() bool {
	return s != nil && s.index != nil
}

// Index exposes the underlying backend for the retrieval pipeline.
func (s *Sync) Index() Index {
	if s == nil {
		return nil
	}
	return s.index
}

// SyncTask upserts the task's knowledge object.
func (s *Sync) SyncTask(ctx context.Context, task *domain.Task) {
	if !s.Enabled() {
		return
	}
	s.upsert(ctx, ObjectFromTask(task, s.loginOf(ctx, task.AssigneeID), s.baseURL))
}

// DeleteTask removes the task object and its linked issue object.
func (s *Sync) DeleteTask(ctx context.Context, taskID string) {
	if !s.Enabled() {
		return
	}
	s.delete(ctx, taskID)
	s.delete(ctx, taskID+"_gh")
}

// SyncItem upserts the item with its effective (possibly inherited) context.
func (s *Sync) SyncItem(ctx context.Context, item *domain.Item) {
	if !s.Enabled() {
		return
	}
	body, tags, err := s.store.EffectiveContext(ctx, item)
	if err != nil {
		s.logger.Warn("knowledge sync: effective context of item %s: %v", item.ID, err)
		body, tags = item.Description, item.Tags
	}
	s.upsert(ctx, ObjectFromItem(item, body, tags, s.loginOf(ctx, item.OwnerID), s.baseURL))
}

// DeleteItem removes the item's knowledge object. Tasks and files under the
// item carry their own lifecycle and are removed by their own deletes.
func (s *Sync) DeleteItem(ctx context.Context, itemID string) {
	if !s.Enabled() {
		return
	}
	s.delete(ctx, itemID)
}

// SyncIssue upserts the GitHubIssue object linked to a task.
func (s *Sync) SyncIssue(ctx context.Context, task *domain.Task, issueTitle, issueBody, issueState, issueURL string) {
	if !s.Enabled() {
		return
	}
	s.upsert(ctx, ObjectFromIssue(task, issueTitle, issueBody, issueState, issueURL))
}

// SyncFile replaces the file's chunk objects with the given content chunks
// and marks the file indexed on success.
func (s *Sync) SyncFile(ctx context.Context, file *domain.ItemFile, chunks []string, uploaderLogin string) {
	if !s.Enabled() {
		return
	}
	// Old chunks first: a shrinking re-upload must not leave stale tails.
	if err := s.index.DeleteFileChunks(ctx, file.ID); err != nil {
		s.logger.Warn("knowledge sync: clear chunks of file %s: %v", file.ID, err)
	}
	failed := false
	for _, obj := range ObjectsFromFileChunks(file, chunks, uploaderLogin) {
		if err := s.index.Upsert(ctx, obj); err != nil {
			s.logger.Error("knowledge sync: upsert %s: %v", obj.ID, err)
			failed = true
		}
	}
	if failed {
		return
	}
	if err := s.store.MarkFileIndexed(ctx, file.ID, true); err != nil {
		s.logger.Warn("knowledge sync: mark file %s indexed: %v", file.ID, err)
	}
}

// DeleteFile removes every chunk of the file from the index.
func (s *Sync) DeleteFile(ctx context.Context, fileID string) {
	if !s.Enabled() {
		return
	}
	if err := s.index.DeleteFileChunks(ctx, fileID); err != nil {
		s.logger.Error("knowledge sync: delete chunks of file %s: %v", fileID, err)
	}
}

// SyncContext upserts an analyzed milestone context object.
func (s *Sync) SyncContext(ctx context.Context, c *domain.MilestoneContextObject, itemID string) {
	if !s.Enabled() {
		return
	}
	s.upsert(ctx, ObjectFromContext(c, itemID, s.baseURL))
}

// SyncQA upserts a saved question/answer exchange and records the save.
func (s *Sync) SyncQA(ctx context.Context, qa *domain.QuestionAnswer) error {
	if !s.Enabled() {
		return nil
	}
	// Saving Q&A is user-initiated, so here a failure does surface.
	if err := s.index.Upsert(ctx, ObjectFromQA(qa, s.baseURL)); err != nil {
		return fmt.Errorf("save answer as knowledge: %w", err)
	}
	return s.store.MarkSavedAsKnowledge(ctx, qa.ID)
}

// Search runs a hybrid query against the index.
func (s *Sync) Search(ctx context.Context, query string, alpha float64, limit int, filter Filter) ([]Hit, error) {
	if !s.Enabled() {
		return nil, nil
	}
	return s.index.Search(ctx, query, alpha, limit, filter)
}

func (s *Sync) upsert(ctx context.Context, obj Object) {
	if err := s.index.Upsert(ctx, obj); err != nil {
		s.logger.Error("knowledge sync: upsert %s (%s): %v", obj.ID, obj.Type, err)
		return
	}
	metrics.KnowledgeUpserts.WithLabelValues(string(obj.Type)).Inc()
}

func (s *Sync) delete(ctx context.Context, id string) {
	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.Warn("knowledge sync: delete %s: %v", id, err)
	}
}

// loginOf resolves a user id to its login for display in search results.
func (s *Sync) loginOf(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Login
}
