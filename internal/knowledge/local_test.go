package knowledge

import (
	"context"
	"crypto/sha256"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/domain"
)

// hashEmbed is a deterministic offline embedding for tests.
func hashEmbed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		vec[i] = float32(sum[i]) + 1
		norm += float64(vec[i]) * float64(vec[i])
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

func newTestIndex(t *testing.T) Index {
	t.Helper()
	index, err := NewLocalIndex(LocalConfig{}, hashEmbed)
	require.NoError(t, err)
	return index
}

func TestLocalIndexUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	require.NoError(t, index.Upsert(ctx, Object{
		ID:          "task-1",
		Type:        TypeTask,
		Title:       "Fix login timeout",
		Description: "Session cookie expires too early",
		ItemID:      "item-1",
		CreatedAt:   time.Now(),
	}))
	require.NoError(t, index.Upsert(ctx, Object{
		ID:          "task-2",
		Type:        TypeTask,
		Title:       "Write release notes",
		Description: "Summarize the sprint",
		ItemID:      "item-2",
		CreatedAt:   time.Now(),
	}))
	assert.Equal(t, 2, index.Count())

	// With alpha 0 the ranking is purely lexical and deterministic.
	hits, err := index.Search(ctx, "login timeout", 0, 5, Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "task-1", hits[0].ID)
	assert.Equal(t, "Fix login timeout", hits[0].Object.Title)
	assert.Equal(t, "Session cookie expires too early", hits[0].Object.Description)
}

func TestLocalIndexUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	obj := Object{ID: "task-1", Type: TypeTask, Title: "Old title", CreatedAt: time.Now()}
	require.NoError(t, index.Upsert(ctx, obj))
	obj.Title = "New title"
	require.NoError(t, index.Upsert(ctx, obj))

	assert.Equal(t, 1, index.Count())
	hits, err := index.Search(ctx, "title", 0, 5, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "New title", hits[0].Object.Title)
}

func TestLocalIndexFilter(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	require.NoError(t, index.Upsert(ctx, Object{ID: "t1", Type: TypeTask, Title: "deploy pipeline", ItemID: "item-a", CreatedAt: time.Now()}))
	require.NoError(t, index.Upsert(ctx, Object{ID: "i1", Type: TypeItem, Title: "deploy project", ItemID: "", CreatedAt: time.Now()}))
	require.NoError(t, index.Upsert(ctx, Object{ID: "t2", Type: TypeTask, Title: "deploy docs", ItemID: "item-b", CreatedAt: time.Now()}))

	hits, err := index.Search(ctx, "deploy", 0, 10, Filter{Type: TypeTask})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, TypeTask, h.Object.Type)
	}

	hits, err = index.Search(ctx, "deploy", 0, 10, Filter{ItemID: "item-b"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t2", hits[0].ID)
}

func TestLocalIndexDelete(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	require.NoError(t, index.Upsert(ctx, Object{ID: "t1", Type: TypeTask, Title: "a", CreatedAt: time.Now()}))
	require.NoError(t, index.Delete(ctx, "t1"))
	assert.Equal(t, 0, index.Count())

	// Deleting a missing id is not an error.
	assert.NoError(t, index.Delete(ctx, "gone"))
}

func TestLocalIndexDeleteFileChunks(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	file := &domain.ItemFile{ID: "file-9", ItemID: "item-1", Filename: "spec.pdf", CreatedAt: time.Now()}
	for _, obj := range ObjectsFromFileChunks(file, []string{"part one", "part two", "part three"}, "alice") {
		require.NoError(t, index.Upsert(ctx, obj))
	}
	require.NoError(t, index.Upsert(ctx, Object{ID: "t1", Type: TypeTask, Title: "unrelated", CreatedAt: time.Now()}))
	assert.Equal(t, 4, index.Count())

	require.NoError(t, index.DeleteFileChunks(ctx, "file-9"))
	assert.Equal(t, 1, index.Count())
}

func TestChunkObjects(t *testing.T) {
	file := &domain.ItemFile{ID: "f1", ItemID: "item-1", Filename: "notes.md", CreatedAt: time.Now()}

	single := ObjectsFromFileChunks(file, []string{"only part"}, "bob")
	require.Len(t, single, 1)
	assert.Equal(t, "f1_0", single[0].ID)
	assert.Equal(t, "notes.md", single[0].Title)

	multi := ObjectsFromFileChunks(file, []string{"a", "b"}, "bob")
	require.Len(t, multi, 2)
	assert.Equal(t, "notes.md (Part 1/2)", multi[0].Title)
	assert.Equal(t, "notes.md (Part 2/2)", multi[1].Title)
	assert.True(t, IsChunkOf("f1_1", "f1"))
	assert.False(t, IsChunkOf("f1_x", "f1"))
	assert.False(t, IsChunkOf("f2_0", "f1"))
}

func TestKeywordScore(t *testing.T) {
	assert.Equal(t, 1.0, keywordScore("login timeout", "the Login Timeout bug"))
	assert.Equal(t, 0.5, keywordScore("login timeout", "login works fine"))
	assert.Equal(t, 0.0, keywordScore("", "anything"))
}
