package domain

import "time"

// Milestone groups context objects under an item with a due date and an
// aggregated summary recomputed from analyzed context.
type Milestone struct {
	ID          string     `json:"id"`
	ItemID      string     `json:"item_id"`
	Name        string     `json:"name"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ContextKind classifies milestone context objects.
type ContextKind string

const (
	ContextFile       ContextKind = "file"
	ContextEmail      ContextKind = "email"
	ContextTranscript ContextKind = "transcript"
	ContextNote       ContextKind = "note"
)

// ProposedTask is a task suggestion derived from analyzed context.
type ProposedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// MilestoneContextObject is raw material (file, email, transcript, note)
// attached to a milestone, summarized and mined for tasks by the agents.
type MilestoneContextObject struct {
	ID            string         `json:"id"`
	MilestoneID   string         `json:"milestone_id"`
	Kind          ContextKind    `json:"kind"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	Summary       string         `json:"summary,omitempty"`
	ProposedTasks []ProposedTask `json:"proposed_tasks,omitempty"`
	Analyzed      bool           `json:"analyzed"`
	CreatedAt     time.Time      `json:"created_at"`
}
