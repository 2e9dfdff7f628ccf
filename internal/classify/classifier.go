// Package classify decides what to do with an inbound message that does not
// resolve to an existing task thread: create a task under some item, or
// ignore it as chatter. The decision comes from the message-classifier
// agent, primed with RAG-suggested item candidates.
package classify

import (
	"context"
	"fmt"
	"strings"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
)

// Reasons attached to ignore decisions produced locally.
const (
	ReasonClassifierError = "classifier_error"
	ReasonNoSuitableItem  = "no_suitable_item"
)

// Decision is the classifier's verdict for one message.
type Decision struct {
	Create          bool
	ItemID          string
	TaskTitle       string
	TaskDescription string
	Reason          string // set on ignore
}

// ItemSuggester is the RAG pre-query producing item candidates.
type ItemSuggester interface {
	SuggestItems(ctx context.Context, body string) []knowledge.Hit
}

// Classifier routes unthreaded inbound messages.
type Classifier struct {
	gateway       agentgw.Gateway
	suggester     ItemSuggester
	defaultItemID string
	logger        logging.Logger
}

// New creates a classifier. defaultItemID receives tasks when the agent
// picks no item; empty means such messages are ignored.
func New(gateway agentgw.Gateway, suggester ItemSuggester, defaultItemID string, logger logging.Logger) *Classifier {
	return &Classifier{
		gateway:       gateway,
		suggester:     suggester,
		defaultItemID: defaultItemID,
		logger:        logging.OrNop(logger),
	}
}

// Classify decides for one message body. It never returns an error: any
// agent failure or malformed result degrades to an ignore decision so the
// polling tick survives.
func (c *Classifier) Classify(ctx context.Context, body, sender string) Decision {
	return c.ClassifyAmong(ctx, body, sender, c.suggester.SuggestItems(ctx, body))
}

// ClassifyAmong is Classify with an explicit candidate set, used when the
// source already scopes the eligible items (a channel-bound poller).
func (c *Classifier) ClassifyAmong(ctx context.Context, body, sender string, candidates []knowledge.Hit) Decision {
	res, err := c.gateway.Invoke(ctx, agentgw.AgentClassifier, c.prompt(body, sender, candidates), nil)
	if err != nil {
		c.logger.Warn("classify: agent failed: %v", err)
		return Decision{Reason: ReasonClassifierError}
	}

	payload, err := agentgw.Decode[agentgw.ClassifierResult](res.Result)
	if err != nil {
		c.logger.Warn("classify: unusable result: %v", err)
		return Decision{Reason: ReasonClassifierError}
	}
	if err := payload.Validate(); err != nil {
		c.logger.Warn("classify: invalid decision: %v", err)
		return Decision{Reason: ReasonClassifierError}
	}

	if payload.Kind == agentgw.ClassifyIgnore {
		return Decision{Reason: payload.Reason}
	}

	itemID := payload.ItemID
	if itemID == "" {
		itemID = c.defaultItemID
	}
	if itemID == "" {
		return Decision{Reason: ReasonNoSuitableItem}
	}

	description := payload.TaskDescription
	if description == "" {
		description = body
	}
	return Decision{
		Create:          true,
		ItemID:          itemID,
		TaskTitle:       payload.TaskTitle,
		TaskDescription: description,
	}
}

func (c *Classifier) prompt(body, sender string, candidates []knowledge.Hit) string {
	var b strings.Builder
	b.WriteString("Classify the following message: decide whether it describes actionable work ")
	b.WriteString("(kind=create) or is informational chatter (kind=ignore).\n")
	b.WriteString("Respond as JSON: {\"kind\",\"item_id\",\"task_title\",\"task_description\",\"reason\"}.\n")
	b.WriteString("Pick item_id from the candidates, or leave it empty when none fits.\n\n")

	if len(candidates) > 0 {
		b.WriteString("Item candidates:\n")
		for _, hit := range candidates {
			fmt.Fprintf(&b, "- %s: %s\n", hit.Object.ID, hit.Object.Title)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Sender: %s\n\nMessage:\n%s\n", sender, body)
	return b.String()
}
