package poller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/github"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/store"
	"ideagraph/internal/thread"
)

type createdIssue struct {
	Owner, Repo, Title, Body string
	Labels                   []string
}

type fakeIssueWriter struct {
	created   []createdIssue
	comments  []string
	createErr error
	nextNum   int
}

func (f *fakeIssueWriter) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*github.Issue, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, createdIssue{Owner: owner, Repo: repo, Title: title, Body: body, Labels: labels})
	if f.nextNum == 0 {
		f.nextNum = 42
	}
	return &github.Issue{Number: f.nextNum, Title: title, Body: body, State: "open",
		HTMLURL: "https://github.com/acme/widgets/issues/42"}, nil
}

func (f *fakeIssueWriter) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*github.IssueComment, error) {
	f.comments = append(f.comments, body)
	return &github.IssueComment{ID: 1, Body: body}, nil
}

func newPushFixture(t *testing.T, api *fakeIssueWriter) (*Pusher, *store.Store, *recordingIndex) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx := &recordingIndex{}
	sync := knowledge.NewSync(st, idx, "https://app.example.com", nil)
	return NewPusher(ghSettings(), api, st, sync, nil), st, idx
}

func TestPusherOpensIssueAndMovesReadyToWorking(t *testing.T) {
	ctx := context.Background()
	api := &fakeIssueWriter{}
	p, st, idx := newPushFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Add export", Description: "CSV export of reports.",
		ItemID: item.ID, Status: domain.TaskStatusReady, Tags: []string{"feature"}}
	require.NoError(t, st.CreateTask(ctx, task))

	issue, err := p.Push(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)

	require.Len(t, api.created, 1)
	assert.Equal(t, "acme", api.created[0].Owner)
	assert.Equal(t, "widgets", api.created[0].Repo)
	assert.Equal(t, "Add export", api.created[0].Title)
	assert.Equal(t, []string{"feature"}, api.created[0].Labels)

	// The acknowledgement carries the thread token so the poller's mirror
	// pass recognizes it as ours.
	require.Len(t, api.comments, 1)
	assert.Contains(t, api.comments[0], thread.Token(task.ShortID))

	updated, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, updated.GitHubIssueNumber)
	assert.Equal(t, domain.TaskStatusWorking, updated.Status)

	var types []knowledge.Type
	for _, obj := range idx.upserts {
		types = append(types, obj.Type)
	}
	assert.Contains(t, types, knowledge.TypeTask)
	assert.Contains(t, types, knowledge.TypeGitHubIssue)
}

func TestPusherKeepsNonReadyStatus(t *testing.T) {
	ctx := context.Background()
	p, st, _ := newPushFixture(t, &fakeIssueWriter{})

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Add export", ItemID: item.ID, Status: domain.TaskStatusNew}
	require.NoError(t, st.CreateTask(ctx, task))

	_, err := p.Push(ctx, task.ID)
	require.NoError(t, err)

	updated, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusNew, updated.Status)
}

func TestPusherRejectsLinkedTask(t *testing.T) {
	ctx := context.Background()
	api := &fakeIssueWriter{}
	p, st, _ := newPushFixture(t, api)

	item := &domain.Item{Title: "Widgets", SourceRepo: "acme/widgets"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Add export", ItemID: item.ID, GitHubIssueNumber: 7}
	require.NoError(t, st.CreateTask(ctx, task))

	_, err := p.Push(ctx, task.ID)
	assert.True(t, igerrors.IsConflict(err))
	assert.Empty(t, api.created)
}

func TestPusherRequiresSourceRepo(t *testing.T) {
	ctx := context.Background()
	api := &fakeIssueWriter{}
	p, st, _ := newPushFixture(t, api)

	item := &domain.Item{Title: "Notes"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Add export", ItemID: item.ID}
	require.NoError(t, st.CreateTask(ctx, task))

	_, err := p.Push(ctx, task.ID)
	assert.True(t, igerrors.IsConflict(err))
	assert.Empty(t, api.created)
}

func TestPusherDisabled(t *testing.T) {
	p := NewPusher(config.Settings{}, &fakeIssueWriter{}, nil, nil, nil)
	_, err := p.Push(context.Background(), "t1")
	assert.True(t, igerrors.IsDisabled(err))
}
