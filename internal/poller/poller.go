// Package poller contains the three inbound-event pollers (mail, Teams
// channels, GitHub issues) and the orchestrator that schedules them. All
// pollers share one contract: fetch events strictly newer than a persisted
// cursor, drop the core's own messages, route each event to an existing task
// thread or through the classifier, and advance the cursor only past events
// whose side effects completed.
package poller

import (
	"context"
	"strings"

	"ideagraph/internal/metrics"
)

// Poll sources; also the cursor and failure-sidecar keys.
const (
	SourceMail   = "mail"
	SourceTeams  = "teams"
	SourceGitHub = "github"
)

// Outbound mail carries this header so the mail poller can drop the core's
// own confirmations. Message ids minted by the core share the prefix.
const (
	OriginHeader      = "X-IdeaGraph-Origin"
	OriginValue       = "core"
	selfMessagePrefix = "<ideagraph-"
)

// teamsMessageRef prefixes Teams message ids when stored as comment or task
// source references, keeping them distinguishable from mail message ids.
const teamsMessageRef = "teams:"

// TickResult summarizes one poll tick.
type TickResult struct {
	Fetched  int
	Comments int
	Created  int
	Ignored  int
	Self     int
	Failed   int
	Poisoned int
}

// Handled reports the number of messages that completed routing.
func (r TickResult) Handled() int {
	return r.Comments + r.Created + r.Ignored
}

// Poller is the surface the orchestrator and the CLI drive.
type Poller interface {
	Source() string
	PollOnce(ctx context.Context) (TickResult, error)
}

func isSelfMessageID(id string) bool {
	return strings.HasPrefix(strings.ToLower(id), selfMessagePrefix)
}

func countOutcome(source, outcome string) {
	metrics.MessagesHandled.WithLabelValues(source, outcome).Inc()
}
