package msgraph

import (
	"context"
	"fmt"
	"net/url"
)

// GraphUser is a directory user, fetched to enrich Teams senders whose
// UPN the channel message payload omits.
type GraphUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// GetUser looks up a user by object id or UPN.
func (c *Client) GetUser(ctx context.Context, idOrUPN string) (*GraphUser, error) {
	var user GraphUser
	path := "/users/" + url.PathEscape(idOrUPN) + "?$select=id,displayName,mail,userPrincipalName"
	if err := c.get(ctx, path, &user); err != nil {
		return nil, fmt.Errorf("get user %s: %w", idOrUPN, err)
	}
	return &user, nil
}
