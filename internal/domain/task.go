// Package domain defines the entity model shared by the store, the pollers,
// and the knowledge sync layer.
package domain

import "time"

// TaskStatus represents the lifecycle state of a task. The set is open on
// the wire (users may edit freely) but these values carry the poller policy.
type TaskStatus string

const (
	TaskStatusNew     TaskStatus = "new"
	TaskStatusReady   TaskStatus = "ready"
	TaskStatusWorking TaskStatus = "working"
	TaskStatusReview  TaskStatus = "review"
	TaskStatusTesting TaskStatus = "testing"
	TaskStatusDone    TaskStatus = "done"
)

// IsTerminalForSync reports whether the GitHub poller must leave the status
// untouched. done and testing are never auto-overwritten.
func (s TaskStatus) IsTerminalForSync() bool {
	return s == TaskStatusDone || s == TaskStatusTesting
}

// Task is a work unit inside an Item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"` // markdown
	Status      TaskStatus `json:"status"`
	ItemID      string     `json:"item_id"` // mandatory: a task without an item is invalid
	RequesterID string     `json:"requester_id,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	Tags        []string   `json:"tags,omitempty"`

	// GitHubIssueNumber links the task to an issue in the item's source repo.
	GitHubIssueNumber int `json:"github_issue_number,omitempty"`
	// SourceMessageID is the external system's message id that created the task.
	SourceMessageID string `json:"source_message_id,omitempty"`
	// ShortID is the 6-8 char thread token derived from the task id,
	// embedded in outbound mail subjects and Teams replies.
	ShortID string `json:"short_id"`
	// FolderID is the task's folder in the external document library, if one
	// was created for it.
	FolderID string `json:"folder_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
