package poller

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/github"
	"ideagraph/internal/identity"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/store"
	"ideagraph/internal/thread"
)

type fakeIssues struct {
	issues   map[int]*github.Issue // by number
	comments map[int][]*github.IssueComment
	prs      map[int]*github.PullRequest
	listErr  error
}

func (f *fakeIssues) ListIssuesSince(ctx context.Context, owner, repo string, since time.Time, max int) ([]*github.Issue, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*github.Issue
	for _, issue := range f.issues {
		if issue.UpdatedAt.After(since) {
			out = append(out, issue)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (f *fakeIssues) GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error) {
	if issue, ok := f.issues[number]; ok {
		return issue, nil
	}
	return nil, igerrors.FromHTTPStatus(404, assert.AnError)
}

func (f *fakeIssues) ListIssueComments(ctx context.Context, owner, repo string, number int, since time.Time) ([]*github.IssueComment, error) {
	var out []*github.IssueComment
	for _, c := range f.comments[number] {
		if c.CreatedAt.After(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeIssues) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	if pr, ok := f.prs[number]; ok {
		return pr, nil
	}
	return nil, igerrors.FromHTTPStatus(404, assert.AnError)
}

func ghSettings() config.Settings {
	return config.Settings{GitHub: config.GitHubSettings{
		Enabled:     true,
		CopilotUser: "copilot-bot",
	}}
}

func newGitHubFixture(t *testing.T, api *fakeIssues) (*GitHubPoller, *store.Store, *recordingIndex) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx := &recordingIndex{}
	sync := knowledge.NewSync(st, idx, "https://app.example.com", nil)
	p := NewGitHubPoller(ghSettings(), api, identity.NewResolver(st), st, sync, nil)
	return p, st, idx
}

func issue(number int, state, title string, updated time.Time) *github.Issue {
	return &github.Issue{
		Number:    number,
		Title:     title,
		Body:      "body of " + title,
		State:     state,
		HTMLURL:   "https://github.com/acme/widgets/issues/1",
		UpdatedAt: updated,
		User:      &github.Account{Login: "octocat"},
	}
}

func TestGitHubPollerMovesClosedIssueToTesting(t *testing.T) {
	ctx := context.Background()
	api := &fakeIssues{issues: map[int]*github.Issue{
		7: issue(7, "closed", "Crash on save", time.Now()),
	}}
	p, st, idx := newGitHubFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	working := &domain.Task{Title: "Crash on save", ItemID: item.ID, Status: domain.TaskStatusWorking, GitHubIssueNumber: 7}
	require.NoError(t, st.CreateTask(ctx, working))

	_, err := p.PollOnce(ctx)
	require.NoError(t, err)

	updated, err := st.GetTask(ctx, working.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusTesting, updated.Status)

	// Task object and issue object both refreshed.
	var types []knowledge.Type
	for _, obj := range idx.upserts {
		types = append(types, obj.Type)
	}
	assert.Contains(t, types, knowledge.TypeTask)
	assert.Contains(t, types, knowledge.TypeGitHubIssue)
}

func TestGitHubPollerLeavesTerminalStatusAlone(t *testing.T) {
	ctx := context.Background()
	api := &fakeIssues{issues: map[int]*github.Issue{
		8: issue(8, "closed", "Old bug", time.Now()),
	}}
	p, st, _ := newGitHubFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	done := &domain.Task{Title: "Old bug", ItemID: item.ID, Status: domain.TaskStatusDone, GitHubIssueNumber: 8}
	require.NoError(t, st.CreateTask(ctx, done))

	_, err := p.PollOnce(ctx)
	require.NoError(t, err)

	updated, err := st.GetTask(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, updated.Status)
}

func TestGitHubPollerMirrorsIssueComments(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	api := &fakeIssues{
		issues: map[int]*github.Issue{7: issue(7, "open", "Crash on save", now)},
	}
	p, st, _ := newGitHubFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Crash on save", ItemID: item.ID, Status: domain.TaskStatusWorking, GitHubIssueNumber: 7}
	require.NoError(t, st.CreateTask(ctx, task))

	api.comments = map[int][]*github.IssueComment{7: {
		{ID: 101, Body: "Tracked as " + thread.Token(task.ShortID) + ".",
			User: &github.Account{Login: "ideagraph-bot"}, CreatedAt: now},
		{ID: 102, Body: "Repro attached.",
			User: &github.Account{Login: "octocat"}, CreatedAt: now.Add(time.Second)},
	}}

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Self) // our own acknowledgement carries the token

	comments, err := st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Repro attached.", comments[0].Body)
	assert.Equal(t, domain.CommentSourceGitHub, comments[0].Source)
	assert.Equal(t, domain.DirectionInbound, comments[0].Direction)
	assert.Equal(t, "github-comment:102", comments[0].MessageID)

	author, err := st.GetUser(ctx, comments[0].AuthorID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", author.Login)

	// Second tick: the comment cursor advanced, nothing is appended twice.
	_, err = p.PollOnce(ctx)
	require.NoError(t, err)
	comments, err = st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestGitHubPollerDisambiguatesClosedPullRequests(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	merged := issue(20, "closed", "Fix crash", now)
	merged.PullRequest = &struct{}{}
	abandoned := issue(21, "closed", "Experiment", now)
	abandoned.PullRequest = &struct{}{}

	api := &fakeIssues{
		issues: map[int]*github.Issue{20: merged, 21: abandoned},
		prs: map[int]*github.PullRequest{
			20: {Number: 20, State: "closed", Merged: true},
			21: {Number: 21, State: "closed", Merged: false},
		},
	}
	p, st, _ := newGitHubFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	mergedTask := &domain.Task{Title: "Fix crash", ItemID: item.ID, Status: domain.TaskStatusWorking, GitHubIssueNumber: 20}
	require.NoError(t, st.CreateTask(ctx, mergedTask))
	abandonedTask := &domain.Task{Title: "Experiment", ItemID: item.ID, Status: domain.TaskStatusWorking, GitHubIssueNumber: 21}
	require.NoError(t, st.CreateTask(ctx, abandonedTask))

	_, err := p.PollOnce(ctx)
	require.NoError(t, err)

	updated, err := st.GetTask(ctx, mergedTask.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusTesting, updated.Status)

	// A PR closed without a merge is abandoned work, not done work.
	updated, err = st.GetTask(ctx, abandonedTask.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusWorking, updated.Status)
}

func TestGitHubPollerCreatesTasksFromNewIssues(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	pr := issue(11, "open", "Some PR", now.Add(time.Second))
	pr.PullRequest = &struct{}{}
	copilotIssue := issue(12, "open", "Automated suggestion", now.Add(2*time.Second))
	copilotIssue.User = &github.Account{Login: "copilot-bot"}

	api := &fakeIssues{issues: map[int]*github.Issue{
		10: issue(10, "open", "Add export", now),
		11: pr,
		12: copilotIssue,
		13: issue(13, "closed", "Already fixed", now.Add(3*time.Second)),
	}}
	p, st, _ := newGitHubFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Ignored) // the PR
	assert.Equal(t, 1, res.Self)    // the copilot issue

	open, err := st.GetTaskByIssue(ctx, item.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusNew, open.Status)
	assert.Equal(t, "Add export", open.Title)

	closed, err := st.GetTaskByIssue(ctx, item.ID, 13)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusTesting, closed.Status)

	// Requester resolved from the GitHub login.
	requester, err := st.GetUser(ctx, open.RequesterID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", requester.Login)

	// Second tick: cursor advanced, nothing new, no duplicates.
	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
}

func TestGitHubPollerDefersOnRateLimit(t *testing.T) {
	ctx := context.Background()
	api := &fakeIssues{listErr: &igerrors.TransientError{StatusCode: 403, RetryAfter: 30}}
	p, st, _ := newGitHubFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Created)

	cursor, err := st.GetCursor(ctx, SourceGitHub+":acme/widgets")
	require.NoError(t, err)
	assert.True(t, cursor.IsZero())
}
