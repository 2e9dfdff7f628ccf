// Package knowledge maintains the single logical vector collection
// (KnowledgeObject) that indexes every searchable entity kind. Entities map
// to objects with a type discriminator and cross-references; file content
// fans out into deterministic <fileId>_<n> chunks.
package knowledge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ideagraph/internal/domain"
)

// Type discriminates the entity kind behind a knowledge object.
type Type string

const (
	TypeItem        Type = "Item"
	TypeTask        Type = "Task"
	TypeGitHubIssue Type = "GitHubIssue"
	TypeFile        Type = "File"
	TypeContext     Type = "Context"
	TypeQA          Type = "QA"
)

// Object is the canonical knowledge record. ID equals the owning entity's id,
// or <fileId>_<chunkIndex> for file chunks, so upserts are idempotent.
type Object struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Status        string    `json:"status,omitempty"`
	Owner         string    `json:"owner,omitempty"`
	ItemID        string    `json:"itemId,omitempty"`
	TaskID        string    `json:"taskId,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	URL           string    `json:"url,omitempty"`
	GitHubIssueID int       `json:"githubIssueId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Hit is a search result from the vector index.
type Hit struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Object Object  `json:"object"`
}

// Filter restricts a hybrid search. Zero values match everything.
type Filter struct {
	Type   Type
	ItemID string
}

// ChunkID derives the deterministic id for a file chunk.
func ChunkID(fileID string, index int) string {
	return fmt.Sprintf("%s_%d", fileID, index)
}

// IsChunkOf reports whether id names a chunk of the given file.
func IsChunkOf(id, fileID string) bool {
	rest, ok := strings.CutPrefix(id, fileID+"_")
	if !ok {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

// ObjectFromTask builds the knowledge payload for a task.
func ObjectFromTask(task *domain.Task, ownerLogin, baseURL string) Object {
	return Object{
		ID:          task.ID,
		Type:        TypeTask,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Owner:       ownerLogin,
		ItemID:      task.ItemID,
		Tags:        task.Tags,
		URL:         deepLink(baseURL, "tasks", task.ID),
		CreatedAt:   task.CreatedAt,
	}
}

// ObjectFromItem builds the knowledge payload for an item. body and tags are
// the item's effective context, with parent inheritance already applied.
func ObjectFromItem(item *domain.Item, body string, tags []string, ownerLogin, baseURL string) Object {
	return Object{
		ID:          item.ID,
		Type:        TypeItem,
		Title:       item.Title,
		Description: body,
		Status:      item.Status,
		Owner:       ownerLogin,
		Tags:        tags,
		URL:         deepLink(baseURL, "items", item.ID),
		CreatedAt:   item.CreatedAt,
	}
}

// ObjectFromIssue builds the single GitHubIssue-typed payload maintained for
// a task linked to an issue.
func ObjectFromIssue(task *domain.Task, issueTitle, issueBody, issueState, issueURL string) Object {
	return Object{
		ID:            task.ID + "_gh",
		Type:          TypeGitHubIssue,
		Title:         issueTitle,
		Description:   issueBody,
		Status:        issueState,
		ItemID:        task.ItemID,
		TaskID:        task.ID,
		URL:           issueURL,
		GitHubIssueID: task.GitHubIssueNumber,
		CreatedAt:     task.CreatedAt,
	}
}

// ObjectsFromFileChunks fans file content out into chunk objects.
func ObjectsFromFileChunks(file *domain.ItemFile, chunks []string, uploaderLogin string) []Object {
	total := len(chunks)
	objects := make([]Object, 0, total)
	for i, chunk := range chunks {
		title := file.Filename
		if total > 1 {
			title = fmt.Sprintf("%s (Part %d/%d)", file.Filename, i+1, total)
		}
		objects = append(objects, Object{
			ID:          ChunkID(file.ID, i),
			Type:        TypeFile,
			Title:       title,
			Description: chunk,
			Owner:       uploaderLogin,
			ItemID:      file.ItemID,
			URL:         file.RemoteURL,
			CreatedAt:   file.CreatedAt,
		})
	}
	return objects
}

// ObjectFromContext builds the payload for an analyzed milestone context.
func ObjectFromContext(c *domain.MilestoneContextObject, itemID, baseURL string) Object {
	body := c.Summary
	if body == "" {
		body = c.Content
	}
	return Object{
		ID:          c.ID,
		Type:        TypeContext,
		Title:       c.Title,
		Description: body,
		Status:      string(c.Kind),
		ItemID:      itemID,
		URL:         deepLink(baseURL, "milestones", c.MilestoneID),
		CreatedAt:   c.CreatedAt,
	}
}

// ObjectFromQA builds the payload for a saved question/answer exchange.
func ObjectFromQA(qa *domain.QuestionAnswer, baseURL string) Object {
	return Object{
		ID:          qa.ID,
		Type:        TypeQA,
		Title:       qa.Question,
		Description: qa.Answer,
		Owner:       qa.AskedBy,
		ItemID:      qa.ItemID,
		URL:         deepLink(baseURL, "qa", qa.ID),
		CreatedAt:   qa.CreatedAt,
	}
}

func deepLink(baseURL, kind, id string) string {
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + kind + "/" + id
}
