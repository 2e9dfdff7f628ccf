package domain

import "time"

// ItemFile is an uploaded document stored in the external document library
// and indexed into the knowledge collection as one or more chunks.
type ItemFile struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	// RemoteID and RemoteURL identify the file in the external store.
	RemoteID   string    `json:"remote_id,omitempty"`
	RemoteURL  string    `json:"remote_url,omitempty"`
	UploaderID string    `json:"uploader_id,omitempty"`
	Indexed    bool      `json:"indexed"`
	CreatedAt  time.Time `json:"created_at"`
}
