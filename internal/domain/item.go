package domain

import "time"

// MaxItemDepth bounds the parent chain walked by the cycle detector.
const MaxItemDepth = 10

// Item is a project/feature container that owns tasks, files, milestones,
// and Q&A records. Items may form a hierarchy; cycles are rejected at write
// time.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"` // markdown
	ParentID    string `json:"parent_id,omitempty"`
	IsTemplate  bool   `json:"is_template"`
	// InheritContext unions the parent's description and tags into this
	// item's indexed body.
	InheritContext bool     `json:"inherit_context"`
	Status         string   `json:"status"`
	OwnerID        string   `json:"owner_id,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	// ChannelID binds the item to a Teams channel for the Teams poller.
	ChannelID string `json:"channel_id,omitempty"`
	// SourceRepo is the "owner/repo" identifier for the GitHub poller.
	SourceRepo string `json:"source_repo,omitempty"`
	// FolderID is the item's folder in the external document library.
	FolderID  string    `json:"folder_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a normalized label; UsageCount is recomputed, never authoritative.
type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UsageCount  int    `json:"usage_count"`
}
