package maintain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/domain"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/store"
)

type recordingIndex struct {
	knowledge.Index
	upserts []knowledge.Object
	deletes []string
}

func (r *recordingIndex) Upsert(ctx context.Context, obj knowledge.Object) error {
	r.upserts = append(r.upserts, obj)
	return nil
}

func (r *recordingIndex) Delete(ctx context.Context, id string) error {
	r.deletes = append(r.deletes, id)
	return nil
}

func fixture(t *testing.T) (*store.Store, *recordingIndex, *Service) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	idx := &recordingIndex{}
	return st, idx, New(st, knowledge.NewSync(st, idx, "", nil), nil)
}

func TestCleanupTasksDeletesOwnerless(t *testing.T) {
	st, idx, svc := fixture(t)
	ctx := context.Background()

	item := &domain.Item{Title: "Ops"}
	require.NoError(t, st.CreateItem(ctx, item))
	user := &domain.User{Login: "alice"}
	require.NoError(t, st.CreateUser(ctx, user))

	owned := &domain.Task{Title: "keep", ItemID: item.ID, RequesterID: user.ID}
	orphan := &domain.Task{Title: "drop", ItemID: item.ID}
	require.NoError(t, st.CreateTask(ctx, owned))
	require.NoError(t, st.CreateTask(ctx, orphan))

	deleted, err := svc.CleanupTasks(ctx, CleanupTasksOptions{NoOwnerOnly: true})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "drop", deleted[0].Title)

	_, err = st.GetTask(ctx, orphan.ID)
	assert.True(t, store.IsNotFound(err))
	_, err = st.GetTask(ctx, owned.ID)
	assert.NoError(t, err)
	// The task object and its linked-issue object both leave the index.
	assert.Equal(t, []string{orphan.ID, orphan.ID + "_gh"}, idx.deletes)
}

func TestCleanupTasksDryRun(t *testing.T) {
	st, idx, svc := fixture(t)
	ctx := context.Background()

	item := &domain.Item{Title: "Ops"}
	require.NoError(t, st.CreateItem(ctx, item))
	orphan := &domain.Task{Title: "drop", ItemID: item.ID}
	require.NoError(t, st.CreateTask(ctx, orphan))

	listed, err := svc.CleanupTasks(ctx, CleanupTasksOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	_, err = st.GetTask(ctx, orphan.ID)
	assert.NoError(t, err)
	assert.Empty(t, idx.deletes)
}

func TestCleanupTagsPrunesUnused(t *testing.T) {
	st, _, svc := fixture(t)
	ctx := context.Background()

	item := &domain.Item{Title: "Ops", Tags: []string{"infra"}}
	require.NoError(t, st.CreateItem(ctx, item))
	_, err := st.EnsureTag(ctx, "infra")
	require.NoError(t, err)
	stale, err := st.EnsureTag(ctx, "obsolete")
	require.NoError(t, err)

	pruned, err := svc.CleanupTags(ctx, false)
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, "obsolete", pruned[0].Name)

	remaining, err := st.ListTags(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "infra", remaining[0].Name)
	_ = stale
}

func TestCleanupTagsDryRunKeepsRows(t *testing.T) {
	st, _, svc := fixture(t)
	ctx := context.Background()

	_, err := st.EnsureTag(ctx, "obsolete")
	require.NoError(t, err)

	pruned, err := svc.CleanupTags(ctx, true)
	require.NoError(t, err)
	require.Len(t, pruned, 1)

	remaining, err := st.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestSyncTagsReupsertsTaggedEntities(t *testing.T) {
	st, idx, svc := fixture(t)
	ctx := context.Background()

	tagged := &domain.Item{Title: "Ops", Tags: []string{"infra"}}
	plain := &domain.Item{Title: "Inbox"}
	require.NoError(t, st.CreateItem(ctx, tagged))
	require.NoError(t, st.CreateItem(ctx, plain))
	require.NoError(t, st.CreateTask(ctx, &domain.Task{Title: "t", ItemID: plain.ID, Tags: []string{"infra"}}))
	require.NoError(t, st.CreateTask(ctx, &domain.Task{Title: "u", ItemID: plain.ID}))

	synced, err := svc.SyncTags(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Len(t, idx.upserts, 2)
}

func TestSyncTagsNarrowedToOneTag(t *testing.T) {
	st, idx, svc := fixture(t)
	ctx := context.Background()

	infra, err := st.EnsureTag(ctx, "infra")
	require.NoError(t, err)
	require.NoError(t, st.CreateItem(ctx, &domain.Item{Title: "Ops", Tags: []string{"infra"}}))
	require.NoError(t, st.CreateItem(ctx, &domain.Item{Title: "Web", Tags: []string{"frontend"}}))

	synced, err := svc.SyncTags(ctx, infra.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	require.Len(t, idx.upserts, 1)
	assert.Equal(t, "Ops", idx.upserts[0].Title)
}
