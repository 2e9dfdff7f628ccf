package msgraph

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// ChannelMessage is the subset of a Teams channel message the poller
// consumes. ReplyToID is set on replies and empty on root messages.
type ChannelMessage struct {
	ID              string
	ReplyToID       string
	Body            string
	BodyContentType string
	SenderID        string // AAD object id
	SenderName      string
	Created         time.Time
}

type graphChatMessage struct {
	ID        string `json:"id"`
	ReplyToID string `json:"replyToId"`
	Body      struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		User struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"from"`
	CreatedDateTime time.Time `json:"createdDateTime"`
}

func (m graphChatMessage) toMessage() ChannelMessage {
	return ChannelMessage{
		ID:              m.ID,
		ReplyToID:       m.ReplyToID,
		Body:            m.Body.Content,
		BodyContentType: m.Body.ContentType,
		SenderID:        m.From.User.ID,
		SenderName:      m.From.User.DisplayName,
		Created:         m.CreatedDateTime,
	}
}

// ListChannelMessages returns root messages created strictly after since,
// oldest first, at most max. Graph does not filter channel messages
// server-side, so the newest page is fetched and filtered here.
func (c *Client) ListChannelMessages(ctx context.Context, teamID, channelID string, since time.Time, max int) ([]ChannelMessage, error) {
	query := url.Values{"$top": {"50"}}
	path := fmt.Sprintf("/teams/%s/channels/%s/messages?%s",
		url.PathEscape(teamID), url.PathEscape(channelID), query.Encode())

	var resp struct {
		Value []graphChatMessage `json:"value"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	return filterSince(resp.Value, since, max), nil
}

// ListReplies returns replies to a root message created strictly after
// since, oldest first, at most max.
func (c *Client) ListReplies(ctx context.Context, teamID, channelID, messageID string, since time.Time, max int) ([]ChannelMessage, error) {
	path := fmt.Sprintf("/teams/%s/channels/%s/messages/%s/replies?$top=50",
		url.PathEscape(teamID), url.PathEscape(channelID), url.PathEscape(messageID))

	var resp struct {
		Value []graphChatMessage `json:"value"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return filterSince(resp.Value, since, max), nil
}

func filterSince(raw []graphChatMessage, since time.Time, max int) []ChannelMessage {
	var messages []ChannelMessage
	for _, m := range raw {
		if !m.CreatedDateTime.After(since) {
			continue
		}
		messages = append(messages, m.toMessage())
	}
	// Graph returns newest first; the pollers want oldest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if max > 0 && len(messages) > max {
		messages = messages[:max]
	}
	return messages
}

// PostReply posts an HTML reply into a message thread.
func (c *Client) PostReply(ctx context.Context, teamID, channelID, messageID, htmlBody string) error {
	path := fmt.Sprintf("/teams/%s/channels/%s/messages/%s/replies",
		url.PathEscape(teamID), url.PathEscape(channelID), url.PathEscape(messageID))
	payload := map[string]any{
		"body": map[string]string{"contentType": "html", "content": htmlBody},
	}
	if err := c.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	return nil
}

// PostChannelMessage posts a new root message into a channel.
func (c *Client) PostChannelMessage(ctx context.Context, teamID, channelID, htmlBody string) error {
	path := fmt.Sprintf("/teams/%s/channels/%s/messages",
		url.PathEscape(teamID), url.PathEscape(channelID))
	payload := map[string]any{
		"body": map[string]string{"contentType": "html", "content": htmlBody},
	}
	if err := c.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("post channel message: %w", err)
	}
	return nil
}
