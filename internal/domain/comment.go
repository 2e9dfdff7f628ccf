package domain

import "time"

// CommentSource identifies the transport a comment arrived through.
type CommentSource string

const (
	CommentSourceUser  CommentSource = "user"
	CommentSourceAgent CommentSource = "agent"
	CommentSourceEmail  CommentSource = "email"
	CommentSourceTeams  CommentSource = "teams"
	CommentSourceGitHub CommentSource = "github"
)

// CommentDirection applies to email/teams comments only.
type CommentDirection string

const (
	DirectionInbound  CommentDirection = "inbound"
	DirectionOutbound CommentDirection = "outbound"
)

// SystemAuthor is the author recorded on comments the pipeline writes itself.
const SystemAuthor = "system"

// TaskComment is an append-only message attached to a task. Source-specific
// headers are kept so threads can be reconstructed.
type TaskComment struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"task_id"`
	AuthorID  string           `json:"author_id"` // user id or SystemAuthor
	Body      string           `json:"body"`
	Source    CommentSource    `json:"source"`
	Direction CommentDirection `json:"direction,omitempty"`

	Subject   string `json:"subject,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	InReplyTo string `json:"in_reply_to,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	CC        string `json:"cc,omitempty"`

	// Position orders comments within a task; appended under transaction.
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}
