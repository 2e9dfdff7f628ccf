package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// EmbedFunc produces the embedding for one text.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// LocalConfig holds configuration for the embedded vector store.
type LocalConfig struct {
	PersistPath string // directory for the gob snapshot; empty keeps it in memory
	Collection  string // defaults to "knowledge"
}

// localIndex implements Index on chromem-go.
type localIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewLocalIndex opens (or creates) the embedded vector collection.
func NewLocalIndex(config LocalConfig, embed EmbedFunc) (Index, error) {
	if config.Collection == "" {
		config.Collection = "knowledge"
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		persistFile := filepath.Join(config.PersistPath, "knowledge.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &localIndex{db: db, collection: collection}, nil
}

// Upsert writes or replaces one object. chromem keys documents by id, so
// re-adding replaces in place.
func (x *localIndex) Upsert(ctx context.Context, obj Object) error {
	err := x.collection.AddDocument(ctx, chromem.Document{
		ID:       obj.ID,
		Content:  embeddingText(obj),
		Metadata: encodeMetadata(obj),
	})
	if err != nil {
		return fmt.Errorf("upsert object %s: %w", obj.ID, err)
	}
	return nil
}

// Delete removes one object by its metadata id.
func (x *localIndex) Delete(ctx context.Context, id string) error {
	if err := x.collection.Delete(ctx, map[string]string{"id": id}, nil); err != nil {
		return fmt.Errorf("delete object %s: %w", id, err)
	}
	return nil
}

// DeleteFileChunks removes every chunk carrying the file's id.
func (x *localIndex) DeleteFileChunks(ctx context.Context, fileID string) error {
	if err := x.collection.Delete(ctx, map[string]string{"fileId": fileID}, nil); err != nil {
		return fmt.Errorf("delete chunks of %s: %w", fileID, err)
	}
	return nil
}

// Search over-fetches semantic candidates, blends in the keyword score and
// re-ranks, then cuts to limit.
func (x *localIndex) Search(ctx context.Context, query string, alpha float64, limit int, filter Filter) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	total := x.collection.Count()
	if total == 0 {
		return nil, nil
	}

	// Over-fetch and filter here rather than with a chromem where clause:
	// nResults must not exceed the candidate count, and filtering in Go
	// keeps that bound against the unfiltered total.
	fetch := limit * 2
	if filter.Type != "" || filter.ItemID != "" {
		fetch = limit * 10
	}
	if fetch > total {
		fetch = total
	}

	results, err := x.collection.Query(ctx, query, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		obj := decodeMetadata(r.Metadata, r.Content)
		if filter.Type != "" && obj.Type != filter.Type {
			continue
		}
		if filter.ItemID != "" && obj.ItemID != filter.ItemID {
			continue
		}
		score := alpha*float64(r.Similarity) + (1-alpha)*keywordScore(query, r.Content)
		hits = append(hits, Hit{ID: r.ID, Score: score, Object: obj})
	}
	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (x *localIndex) Count() int {
	return x.collection.Count()
}

// Close is a no-op: chromem persists on every mutation.
func (x *localIndex) Close() error {
	return nil
}

func sortHits(hits []Hit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Score > hits[j-1].Score; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// embeddingText is the vectorized document body.
func embeddingText(obj Object) string {
	if obj.Description == "" {
		return obj.Title
	}
	return obj.Title + "\n\n" + obj.Description
}

func encodeMetadata(obj Object) map[string]string {
	meta := map[string]string{
		"id":        obj.ID,
		"type":      string(obj.Type),
		"title":     obj.Title,
		"createdAt": obj.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if obj.Status != "" {
		meta["status"] = obj.Status
	}
	if obj.Owner != "" {
		meta["owner"] = obj.Owner
	}
	if obj.ItemID != "" {
		meta["itemId"] = obj.ItemID
	}
	if obj.TaskID != "" {
		meta["taskId"] = obj.TaskID
	}
	if len(obj.Tags) > 0 {
		meta["tags"] = strings.Join(obj.Tags, ",")
	}
	if obj.URL != "" {
		meta["url"] = obj.URL
	}
	if obj.GitHubIssueID > 0 {
		meta["ghIssue"] = strconv.Itoa(obj.GitHubIssueID)
	}
	if obj.Type == TypeFile {
		if fileID, _, ok := splitChunkID(obj.ID); ok {
			meta["fileId"] = fileID
		}
	}
	return meta
}

func decodeMetadata(meta map[string]string, content string) Object {
	obj := Object{
		ID:     meta["id"],
		Type:   Type(meta["type"]),
		Title:  meta["title"],
		Status: meta["status"],
		Owner:  meta["owner"],
		ItemID: meta["itemId"],
		TaskID: meta["taskId"],
		URL:    meta["url"],
	}
	if tags := meta["tags"]; tags != "" {
		obj.Tags = strings.Split(tags, ",")
	}
	if n, err := strconv.Atoi(meta["ghIssue"]); err == nil {
		obj.GitHubIssueID = n
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta["createdAt"]); err == nil {
		obj.CreatedAt = ts
	}
	// Recover the description from the stored content.
	if obj.Title != "" {
		obj.Description = strings.TrimPrefix(content, obj.Title+"\n\n")
	} else {
		obj.Description = content
	}
	if obj.Description == obj.Title {
		obj.Description = ""
	}
	return obj
}

// splitChunkID splits a <fileId>_<n> chunk id at the last underscore.
func splitChunkID(id string) (fileID string, index int, ok bool) {
	i := strings.LastIndex(id, "_")
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}
