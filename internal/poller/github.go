package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/github"
	"ideagraph/internal/identity"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/metrics"
	"ideagraph/internal/store"
	"ideagraph/internal/thread"
)

// IssueAPI is the slice of the GitHub client the poller needs.
type IssueAPI interface {
	ListIssuesSince(ctx context.Context, owner, repo string, since time.Time, max int) ([]*github.Issue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	ListIssueComments(ctx context.Context, owner, repo string, number int, since time.Time) ([]*github.IssueComment, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
}

// GitHubPoller mirrors issue state of repo-bound items into tasks: closed
// issues push linked tasks to testing, unlinked issues become new tasks.
type GitHubPoller struct {
	settings config.Settings
	api      IssueAPI
	resolver *identity.Resolver
	store    *store.Store
	sync     *knowledge.Sync
	logger   logging.Logger
}

// NewGitHubPoller wires the GitHub poller.
func NewGitHubPoller(settings config.Settings, api IssueAPI, resolver *identity.Resolver,
	st *store.Store, sync *knowledge.Sync, logger logging.Logger) *GitHubPoller {
	return &GitHubPoller{
		settings: settings,
		api:      api,
		resolver: resolver,
		store:    st,
		sync:     sync,
		logger:   logging.OrNop(logger),
	}
}

func (p *GitHubPoller) Source() string { return SourceGitHub }

// PollOnce processes every repo-bound item. A rate-limit (or any transient)
// fault aborts the tick; the unadvanced cursors retry at the next tick,
// which naturally waits out the reset window.
func (p *GitHubPoller) PollOnce(ctx context.Context) (TickResult, error) {
	var res TickResult
	if !p.settings.GitHub.Enabled {
		return res, igerrors.Disabled("github poller")
	}

	items, err := p.store.ListItemsWithSourceRepo(ctx)
	if err != nil {
		return res, err
	}
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		owner, repo, ok := p.splitRepo(item.SourceRepo)
		if !ok {
			p.logger.Warn("github poller: item %s has malformed source repo %q", item.ID, item.SourceRepo)
			continue
		}
		if err := p.syncLinkedIssues(ctx, item, owner, repo, &res); err != nil {
			if igerrors.IsTransient(err) {
				p.logger.Warn("github poller: %s/%s rate limited or unavailable, deferring: %v", owner, repo, err)
				break
			}
			p.logger.Error("github poller: linked issues of %s/%s: %v", owner, repo, err)
		}
		if err := p.ingestNewIssues(ctx, item, owner, repo, &res); err != nil {
			if igerrors.IsTransient(err) {
				p.logger.Warn("github poller: %s/%s rate limited or unavailable, deferring: %v", owner, repo, err)
				break
			}
			p.logger.Error("github poller: new issues of %s/%s: %v", owner, repo, err)
		}
	}
	metrics.PollTicks.WithLabelValues(SourceGitHub).Inc()
	return res, nil
}

func (p *GitHubPoller) splitRepo(sourceRepo string) (owner, repo string, ok bool) {
	return splitSourceRepo(p.settings.GitHub, sourceRepo)
}

// splitSourceRepo resolves "owner/repo"; a bare repo name falls back to the
// configured default owner.
func splitSourceRepo(gh config.GitHubSettings, sourceRepo string) (owner, repo string, ok bool) {
	sourceRepo = strings.TrimSpace(sourceRepo)
	if owner, repo, found := strings.Cut(sourceRepo, "/"); found && owner != "" && repo != "" {
		return owner, repo, true
	}
	if gh.DefaultOwner != "" && sourceRepo != "" {
		return gh.DefaultOwner, sourceRepo, true
	}
	return "", "", false
}

// syncLinkedIssues refreshes every task already linked to an issue. Closed
// issues push the task to testing unless its status is terminal for sync.
func (p *GitHubPoller) syncLinkedIssues(ctx context.Context, item *domain.Item, owner, repo string, res *TickResult) error {
	tasks, err := p.store.ListTasksWithIssues(ctx, item.ID)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if ctx.Err() != nil {
			return nil
		}
		issue, err := p.api.GetIssue(ctx, owner, repo, task.GitHubIssueNumber)
		if err != nil {
			if igerrors.IsTransient(err) {
				return err
			}
			p.logger.Warn("github poller: issue #%d of task %s: %v", task.GitHubIssueNumber, task.ID, err)
			res.Failed++
			continue
		}
		if err := p.applyIssueState(ctx, owner, repo, task, issue); err != nil {
			if igerrors.IsTransient(err) {
				return err
			}
			res.Failed++
			countOutcome(SourceGitHub, "failed")
			continue
		}
		if err := p.mirrorComments(ctx, owner, repo, task, res); err != nil {
			if igerrors.IsTransient(err) {
				return err
			}
			p.logger.Warn("github poller: comments of #%d: %v", task.GitHubIssueNumber, err)
		}
		res.Comments++
		countOutcome(SourceGitHub, "synced")
	}
	return nil
}

// applyIssueState mirrors the remote state onto the linked task. A linked
// pull request is disambiguated with a PR fetch: the issues API reports
// merged and abandoned PRs both as "closed", and only a merge means the work
// reached testing.
func (p *GitHubPoller) applyIssueState(ctx context.Context, owner, repo string, task *domain.Task, issue *github.Issue) error {
	state := issue.State
	reachedTesting := state == "closed"

	if issue.IsPullRequest() {
		pr, err := p.api.GetPullRequest(ctx, owner, repo, issue.Number)
		if err != nil {
			if igerrors.IsTransient(err) {
				return err
			}
			p.logger.Warn("github poller: PR #%d of task %s: %v", issue.Number, task.ID, err)
		} else if state == "closed" {
			reachedTesting = pr.Merged
			if pr.Merged {
				state = "merged"
			}
		}
	}

	if reachedTesting && !task.Status.IsTerminalForSync() {
		task.Status = domain.TaskStatusTesting
		if err := p.store.UpdateTask(ctx, task); err != nil {
			p.logger.Error("github poller: close task %s: %v", task.ID, err)
			return err
		}
		p.sync.SyncTask(ctx, task)
	}
	p.sync.SyncIssue(ctx, task, issue.Title, issue.Body, state, issue.HTMLURL)
	return nil
}

// mirrorComments appends new remote issue comments to the task. The core's
// own acknowledgement carries the thread token, which marks it as self; the
// per-task cursor keeps re-listing bounded.
func (p *GitHubPoller) mirrorComments(ctx context.Context, owner, repo string, task *domain.Task, res *TickResult) error {
	cursorKey := SourceGitHub + ":comments:" + task.ID
	cursor, err := p.store.GetCursor(ctx, cursorKey)
	if err != nil {
		return err
	}
	comments, err := p.api.ListIssueComments(ctx, owner, repo, task.GitHubIssueNumber, cursor)
	if err != nil {
		return err
	}

	advance := cursor
	for _, c := range comments {
		if ctx.Err() != nil {
			break
		}
		if strings.Contains(c.Body, thread.Token(task.ShortID)) {
			res.Self++
			countOutcome(SourceGitHub, "self")
			advance = c.CreatedAt
			continue
		}
		ref := fmt.Sprintf("github-comment:%d", c.ID)
		duplicate, err := p.store.HasCommentWithMessageID(ctx, task.ID, ref)
		if err != nil {
			return err
		}
		if duplicate {
			advance = c.CreatedAt
			continue
		}

		var principal identity.Principal
		var authorLogin string
		if c.User != nil {
			principal.GitHubLogin = c.User.Login
			authorLogin = c.User.Login
		}
		author := p.resolver.ResolveOrUnknown(ctx, principal)
		comment := &domain.TaskComment{
			TaskID:    task.ID,
			AuthorID:  author.ID,
			Body:      c.Body,
			Source:    domain.CommentSourceGitHub,
			Direction: domain.DirectionInbound,
			MessageID: ref,
			From:      authorLogin,
		}
		if err := p.store.AppendComment(ctx, comment); err != nil {
			return fmt.Errorf("append comment %s: %w", ref, err)
		}
		advance = c.CreatedAt
	}

	if advance.After(cursor) {
		return p.store.AdvanceCursor(ctx, cursorKey, advance)
	}
	return nil
}

// ingestNewIssues creates tasks for issues not yet linked to one. The cursor
// is per repo and advances through the updated-asc issue stream.
func (p *GitHubPoller) ingestNewIssues(ctx context.Context, item *domain.Item, owner, repo string, res *TickResult) error {
	cursorKey := SourceGitHub + ":" + owner + "/" + repo
	cursor, err := p.store.GetCursor(ctx, cursorKey)
	if err != nil {
		return err
	}
	issues, err := p.api.ListIssuesSince(ctx, owner, repo, cursor, config.DefaultMaxFetchPerTick)
	if err != nil {
		return fmt.Errorf("list issues: %w", err)
	}
	res.Fetched += len(issues)

	advance := cursor
	for _, issue := range issues {
		if ctx.Err() != nil {
			break
		}
		if issue.IsPullRequest() {
			res.Ignored++
			countOutcome(SourceGitHub, "ignored")
			advance = issue.UpdatedAt
			continue
		}
		if p.isCopilot(issue) {
			res.Self++
			countOutcome(SourceGitHub, "self")
			advance = issue.UpdatedAt
			continue
		}

		existing, err := p.store.GetTaskByIssue(ctx, item.ID, issue.Number)
		switch {
		case err == nil:
			// Already linked; the state refresh retries via syncLinkedIssues
			// on failure, so the cursor may advance either way.
			if stateErr := p.applyIssueState(ctx, owner, repo, existing, issue); stateErr != nil {
				res.Failed++
				countOutcome(SourceGitHub, "failed")
			} else {
				res.Comments++
				countOutcome(SourceGitHub, "synced")
			}
		case store.IsNotFound(err):
			if err := p.createFromIssue(ctx, item, issue); err != nil {
				res.Failed++
				countOutcome(SourceGitHub, "failed")
				p.logger.Error("github poller: issue #%d of %s/%s: %v", issue.Number, owner, repo, err)
				return nil // cursor stays put, retry next tick
			}
			res.Created++
			countOutcome(SourceGitHub, "created")
		default:
			return err
		}
		advance = issue.UpdatedAt
	}

	if advance.After(cursor) {
		return p.store.AdvanceCursor(ctx, cursorKey, advance)
	}
	return nil
}

func (p *GitHubPoller) isCopilot(issue *github.Issue) bool {
	copilot := p.settings.GitHub.CopilotUser
	return copilot != "" && issue.User != nil && strings.EqualFold(issue.User.Login, copilot)
}

func (p *GitHubPoller) createFromIssue(ctx context.Context, item *domain.Item, issue *github.Issue) error {
	status := domain.TaskStatusNew
	if issue.State == "closed" {
		status = domain.TaskStatusTesting
	}

	var requesterID string
	if issue.User != nil {
		requester := p.resolver.ResolveOrUnknown(ctx, identity.Principal{GitHubLogin: issue.User.Login})
		requesterID = requester.ID
	}

	task := &domain.Task{
		Title:             issue.Title,
		Description:       issue.Body,
		Status:            status,
		ItemID:            item.ID,
		RequesterID:       requesterID,
		GitHubIssueNumber: issue.Number,
	}
	if err := p.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	p.sync.SyncTask(ctx, task)
	p.sync.SyncIssue(ctx, task, issue.Title, issue.Body, issue.State, issue.HTMLURL)
	return nil
}
