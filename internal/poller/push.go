package poller

import (
	"context"
	"fmt"

	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/github"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/store"
	"ideagraph/internal/thread"
)

// IssueWriter is the slice of the GitHub client the pusher needs.
type IssueWriter interface {
	CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*github.Issue, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*github.IssueComment, error)
}

// Pusher hands a task over to GitHub: it opens an issue on the item's source
// repo, links the task to it, and moves a ready task to working.
type Pusher struct {
	settings config.Settings
	api      IssueWriter
	store    *store.Store
	sync     *knowledge.Sync
	logger   logging.Logger
}

// NewPusher wires the task pusher.
func NewPusher(settings config.Settings, api IssueWriter, st *store.Store,
	sync *knowledge.Sync, logger logging.Logger) *Pusher {
	return &Pusher{
		settings: settings,
		api:      api,
		store:    st,
		sync:     sync,
		logger:   logging.OrNop(logger),
	}
}

// Push creates the GitHub issue for a task and records the issue number on
// it. A task already linked to an issue is rejected, as is a task whose item
// carries no source repo.
func (p *Pusher) Push(ctx context.Context, taskID string) (*github.Issue, error) {
	if !p.settings.GitHub.Enabled {
		return nil, igerrors.Disabled("github push")
	}
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.GitHubIssueNumber > 0 {
		return nil, igerrors.Conflict("task %s already linked to issue #%d", task.ID, task.GitHubIssueNumber)
	}
	item, err := p.store.GetItem(ctx, task.ItemID)
	if err != nil {
		return nil, err
	}
	owner, repo, ok := splitSourceRepo(p.settings.GitHub, item.SourceRepo)
	if !ok {
		return nil, igerrors.Conflict("item %s has no usable source repo %q", item.ID, item.SourceRepo)
	}

	issue, err := p.api.CreateIssue(ctx, owner, repo, task.Title, task.Description, task.Tags)
	if err != nil {
		return nil, fmt.Errorf("create issue for task %s: %w", task.ID, err)
	}

	// The token in the acknowledgement marks the comment as ours, so the
	// poller's mirror pass skips it.
	ack := fmt.Sprintf("Tracked as %s.", thread.Token(task.ShortID))
	if _, err := p.api.CreateIssueComment(ctx, owner, repo, issue.Number, ack); err != nil {
		p.logger.Warn("github push: acknowledge #%d: %v", issue.Number, err)
	}

	task.GitHubIssueNumber = issue.Number
	if task.Status == domain.TaskStatusReady {
		task.Status = domain.TaskStatusWorking
	}
	if err := p.store.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("link task %s to issue #%d: %w", task.ID, issue.Number, err)
	}
	p.sync.SyncTask(ctx, task)
	p.sync.SyncIssue(ctx, task, issue.Title, issue.Body, issue.State, issue.HTMLURL)
	p.logger.Info("github push: task %s -> %s/%s#%d", task.ID, owner, repo, issue.Number)
	return issue, nil
}
