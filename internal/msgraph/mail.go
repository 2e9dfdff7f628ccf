package msgraph

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// MailMessage is the subset of a Graph mail message the poller consumes.
type MailMessage struct {
	ID                string
	InternetMessageID string
	ConversationID    string
	Subject           string
	Body              string
	BodyContentType   string // "text" or "html"
	FromAddress       string
	FromName          string
	Received          time.Time
}

type graphMailMessage struct {
	ID                string `json:"id"`
	InternetMessageID string `json:"internetMessageId"`
	ConversationID    string `json:"conversationId"`
	Subject           string `json:"subject"`
	Body              struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
}

func (m graphMailMessage) toMessage() MailMessage {
	return MailMessage{
		ID:                m.ID,
		InternetMessageID: m.InternetMessageID,
		ConversationID:    m.ConversationID,
		Subject:           m.Subject,
		Body:              m.Body.Content,
		BodyContentType:   m.Body.ContentType,
		FromAddress:       m.From.EmailAddress.Address,
		FromName:          m.From.EmailAddress.Name,
		Received:          m.ReceivedDateTime,
	}
}

// ListMessages returns messages in the mailbox folder received strictly
// after since, oldest first, at most max.
func (c *Client) ListMessages(ctx context.Context, mailbox, folder string, since time.Time, max int) ([]MailMessage, error) {
	if folder == "" {
		folder = "inbox"
	}

	query := url.Values{
		"$filter":  {fmt.Sprintf("receivedDateTime gt %s", since.UTC().Format(time.RFC3339))},
		"$orderby": {"receivedDateTime asc"},
		"$top":     {fmt.Sprint(max)},
		"$select":  {"id,internetMessageId,conversationId,subject,body,from,receivedDateTime"},
	}
	path := fmt.Sprintf("/users/%s/mailFolders/%s/messages?%s",
		url.PathEscape(mailbox), url.PathEscape(folder), query.Encode())

	var resp struct {
		Value []graphMailMessage `json:"value"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]MailMessage, 0, len(resp.Value))
	for _, m := range resp.Value {
		messages = append(messages, m.toMessage())
	}
	return messages, nil
}

// SendMail sends a plain-text message from the configured mailbox. headers
// carries extension headers such as the self-identifying message-id marker.
func (c *Client) SendMail(ctx context.Context, mailbox, to, subject, body string, headers map[string]string) error {
	recipients := []map[string]any{
		{"emailAddress": map[string]string{"address": to}},
	}
	message := map[string]any{
		"subject":      subject,
		"body":         map[string]string{"contentType": "Text", "content": body},
		"toRecipients": recipients,
	}
	if len(headers) > 0 {
		var extHeaders []map[string]string
		for name, value := range headers {
			extHeaders = append(extHeaders, map[string]string{"name": name, "value": value})
		}
		message["internetMessageHeaders"] = extHeaders
	}

	payload := map[string]any{"message": message, "saveToSentItems": true}
	path := fmt.Sprintf("/users/%s/sendMail", url.PathEscape(mailbox))
	if err := c.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// MoveMessage files a processed message into another folder.
func (c *Client) MoveMessage(ctx context.Context, mailbox, messageID, destinationFolder string) error {
	path := fmt.Sprintf("/users/%s/messages/%s/move",
		url.PathEscape(mailbox), url.PathEscape(messageID))
	payload := map[string]string{"destinationId": destinationFolder}
	if err := c.post(ctx, path, payload, nil); err != nil {
		return fmt.Errorf("move message: %w", err)
	}
	return nil
}
