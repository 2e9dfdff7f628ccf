package msgraph

import (
	"context"
	"fmt"
	"net/url"
)

// DriveItem is a file or folder in the document library.
type DriveItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
}

// EnsureFolder creates a folder under the parent (or the drive root when
// parentID is empty) and returns it. An existing folder of the same name is
// reused via the rename conflict behavior.
func (c *Client) EnsureFolder(ctx context.Context, parentID, name string) (*DriveItem, error) {
	base := c.driveRoot()
	path := base + "/root/children"
	if parentID != "" {
		path = base + "/items/" + url.PathEscape(parentID) + "/children"
	}

	payload := map[string]any{
		"name":                              name,
		"folder":                            map[string]any{},
		"@microsoft.graph.conflictBehavior": "fail",
	}

	var item DriveItem
	err := c.post(ctx, path, payload, &item)
	if err == nil {
		return &item, nil
	}

	// Folder already exists: resolve it by name instead.
	existing, lookupErr := c.childByName(ctx, parentID, name)
	if lookupErr == nil {
		return existing, nil
	}
	return nil, fmt.Errorf("ensure folder %s: %w", name, err)
}

func (c *Client) childByName(ctx context.Context, parentID, name string) (*DriveItem, error) {
	base := c.driveRoot()
	path := base + "/root:/" + escapePath(name)
	if parentID != "" {
		path = base + "/items/" + url.PathEscape(parentID) + ":/" + escapePath(name)
	}

	var item DriveItem
	if err := c.get(ctx, path, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UploadFile writes file bytes into a folder and returns the created item.
// Simple upload caps at 250 MB, far above the extraction limit.
func (c *Client) UploadFile(ctx context.Context, folderID, filename, contentType string, data []byte) (*DriveItem, error) {
	path := fmt.Sprintf("%s/items/%s:/%s:/content",
		c.driveRoot(), url.PathEscape(folderID), escapePath(filename))

	var item DriveItem
	if err := c.put(ctx, path, contentType, data, &item); err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	return &item, nil
}

// DeleteItem removes a file or folder.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	if err := c.delete(ctx, c.driveRoot()+"/items/"+url.PathEscape(itemID)); err != nil {
		return fmt.Errorf("delete drive item: %w", err)
	}
	return nil
}

// MoveItem reparents a file or folder, optionally renaming it. Empty
// arguments leave the corresponding attribute unchanged.
func (c *Client) MoveItem(ctx context.Context, itemID, newParentID, newName string) error {
	payload := map[string]any{}
	if newParentID != "" {
		payload["parentReference"] = map[string]string{"id": newParentID}
	}
	if newName != "" {
		payload["name"] = newName
	}
	if len(payload) == 0 {
		return nil
	}

	path := c.driveRoot() + "/items/" + url.PathEscape(itemID)
	if err := c.patch(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("move drive item: %w", err)
	}
	return nil
}

func (c *Client) driveRoot() string {
	return "/drives/" + url.PathEscape(c.settings.DriveID)
}

// escapePath escapes one path segment for the colon-addressed drive API.
func escapePath(segment string) string {
	return url.PathEscape(segment)
}
