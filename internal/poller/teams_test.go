package poller

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/classify"
	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	"ideagraph/internal/extract"
	"ideagraph/internal/identity"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/store"
)

type postedReply struct {
	ChannelID, MessageID, Body string
}

type fakeTeams struct {
	roots   map[string][]msgraph.ChannelMessage // by channel id
	replies map[string][]msgraph.ChannelMessage // by root message id
	users   map[string]*msgraph.GraphUser
	posted  []postedReply
}

func (f *fakeTeams) ListChannelMessages(ctx context.Context, teamID, channelID string, since time.Time, max int) ([]msgraph.ChannelMessage, error) {
	return newerThan(f.roots[channelID], since, max), nil
}

func (f *fakeTeams) ListReplies(ctx context.Context, teamID, channelID, messageID string, since time.Time, max int) ([]msgraph.ChannelMessage, error) {
	return newerThan(f.replies[messageID], since, max), nil
}

func newerThan(msgs []msgraph.ChannelMessage, since time.Time, max int) []msgraph.ChannelMessage {
	var out []msgraph.ChannelMessage
	for _, m := range msgs {
		if m.Created.After(since) && len(out) < max {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTeams) PostReply(ctx context.Context, teamID, channelID, messageID, htmlBody string) error {
	f.posted = append(f.posted, postedReply{ChannelID: channelID, MessageID: messageID, Body: htmlBody})
	return nil
}

func (f *fakeTeams) GetUser(ctx context.Context, idOrUPN string) (*msgraph.GraphUser, error) {
	if u, ok := f.users[idOrUPN]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func teamsSettings() config.Settings {
	return config.Settings{Teams: config.TeamsSettings{
		Enabled: true,
		TeamID:  "team-1",
		BotUPN:  "bot@example.com",
	}}
}

func newTeamsFixture(t *testing.T, graph *fakeTeams, classifierResult string) (*TeamsPoller, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gw := agentgw.NewMock()
	if classifierResult != "" {
		gw.Respond(agentgw.AgentClassifier, classifierResult)
	}
	sync := knowledge.NewSync(st, &recordingIndex{}, "https://app.example.com", nil)
	classifier := classify.New(gw, fixedSuggester{}, "", nil)

	p := NewTeamsPoller(teamsSettings(), graph, gw, extract.New(nil), classifier,
		identity.NewResolver(st), st, sync, nil)
	return p, st
}

func chatMsg(id, senderID, senderName, body string, at time.Time) msgraph.ChannelMessage {
	return msgraph.ChannelMessage{
		ID:              id,
		SenderID:        senderID,
		SenderName:      senderName,
		Body:            body,
		BodyContentType: "text",
		Created:         at,
	}
}

func TestTeamsPollerCreatesTaskAndAcknowledges(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeTeams{
		roots: map[string][]msgraph.ChannelMessage{
			"chan-1": {chatMsg("100", "oid-alice", "Alice", "Please add a dark mode toggle", now)},
		},
		users: map[string]*msgraph.GraphUser{
			"bot@example.com": {ID: "oid-bot", DisplayName: "IdeaGraph Bot", UserPrincipalName: "bot@example.com"},
			"oid-alice":       {ID: "oid-alice", DisplayName: "Alice", UserPrincipalName: "alice@example.com", Mail: "alice@example.com"},
		},
	}

	p, st := newTeamsFixture(t, graph, "")
	item := &domain.Item{Title: "Frontend", ChannelID: "chan-1"}
	require.NoError(t, st.CreateItem(ctx, item))
	gw := agentgw.NewMock().Respond(agentgw.AgentClassifier,
		`{"kind":"create","item_id":"`+item.ID+`","task_title":"Dark mode toggle","task_description":"Please add a dark mode toggle"}`)
	p.gateway = gw
	p.classifier = classify.New(gw, fixedSuggester{}, "", nil)

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	task, err := st.GetTaskBySourceMessage(ctx, "teams:100")
	require.NoError(t, err)
	assert.Equal(t, "Dark mode toggle", task.Title)

	// The classifier was primed with the channel-bound item only.
	var classifierCall *agentgw.MockCall
	for i := range gw.Calls {
		if gw.Calls[i].Agent == agentgw.AgentClassifier {
			classifierCall = &gw.Calls[i]
		}
	}
	require.NotNil(t, classifierCall)
	assert.Contains(t, classifierCall.Prompt, item.ID)

	// Acknowledgement reply carries the token.
	require.Len(t, graph.posted, 1)
	assert.Equal(t, "100", graph.posted[0].MessageID)
	assert.Contains(t, graph.posted[0].Body, "IG-TASK:#"+task.ShortID)
}

func TestTeamsPollerAcknowledgesWithWelcomeTemplate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeTeams{
		roots: map[string][]msgraph.ChannelMessage{
			"chan-1": {chatMsg("110", "oid-alice", "Alice", "Please add a dark mode toggle", now)},
		},
		users: map[string]*msgraph.GraphUser{
			"bot@example.com": {ID: "oid-bot", DisplayName: "IdeaGraph Bot", UserPrincipalName: "bot@example.com"},
			"oid-alice":       {ID: "oid-alice", DisplayName: "Alice", UserPrincipalName: "alice@example.com", Mail: "alice@example.com"},
		},
	}

	p, st := newTeamsFixture(t, graph, "")
	p.settings.Teams.WelcomeTemplate = "Welcome aboard! {{title}} is tracked as {{token}}."
	item := &domain.Item{Title: "Frontend", ChannelID: "chan-1"}
	require.NoError(t, st.CreateItem(ctx, item))
	gw := agentgw.NewMock().Respond(agentgw.AgentClassifier,
		`{"kind":"create","item_id":"`+item.ID+`","task_title":"Dark mode toggle","task_description":"Please add a dark mode toggle"}`)
	p.gateway = gw
	p.classifier = classify.New(gw, fixedSuggester{}, "", nil)

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	task, err := st.GetTaskBySourceMessage(ctx, "teams:110")
	require.NoError(t, err)

	want := "Welcome aboard! Dark mode toggle is tracked as [IG-TASK:#" + task.ShortID + "]."
	require.Len(t, graph.posted, 1)
	assert.Contains(t, graph.posted[0].Body, "Welcome aboard! Dark mode toggle is tracked as")

	comments, err := st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	var outbound *domain.TaskComment
	for _, c := range comments {
		if c.Direction == domain.DirectionOutbound {
			outbound = c
		}
	}
	require.NotNil(t, outbound)
	assert.Equal(t, want, outbound.Body)
}

func TestTeamsPollerDropsBotMessages(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeTeams{
		roots: map[string][]msgraph.ChannelMessage{
			"chan-1": {
				chatMsg("200", "oid-bot", "IdeaGraph Bot", "Created task ...", now),
				chatMsg("201", "", "IdeaGraph Bot", "no object id, display name match", now.Add(time.Second)),
			},
		},
		users: map[string]*msgraph.GraphUser{
			"bot@example.com": {ID: "oid-bot", DisplayName: "IdeaGraph Bot", UserPrincipalName: "bot@example.com"},
		},
	}

	p, st := newTeamsFixture(t, graph, "")
	require.NoError(t, st.CreateItem(ctx, &domain.Item{Title: "Frontend", ChannelID: "chan-1"}))

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Self)
	assert.Zero(t, res.Created)
	assert.Empty(t, graph.posted)
}

func TestTeamsPollerRoutesTokenMessageAsComment(t *testing.T) {
	ctx := context.Background()
	graph := &fakeTeams{
		users: map[string]*msgraph.GraphUser{
			"bot@example.com": {ID: "oid-bot", UserPrincipalName: "bot@example.com"},
			"oid-alice":       {ID: "oid-alice", UserPrincipalName: "alice@example.com", Mail: "alice@example.com"},
		},
	}
	p, st := newTeamsFixture(t, graph, "")

	item := &domain.Item{Title: "Frontend", ChannelID: "chan-1"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Dark mode toggle", ItemID: item.ID}
	require.NoError(t, st.CreateTask(ctx, task))

	graph.roots = map[string][]msgraph.ChannelMessage{
		"chan-1": {chatMsg("300", "oid-alice", "Alice",
			"Any update on [IG-TASK:#"+task.ShortID+"]?", time.Now())},
	}

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Comments)

	comments, err := st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, domain.CommentSourceTeams, comments[0].Source)
	assert.Equal(t, "teams:300", comments[0].MessageID)
	assert.True(t, strings.HasPrefix(comments[0].Body, "Any update"))
}

func TestTeamsPollerIngestsThreadReplies(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeTeams{
		users: map[string]*msgraph.GraphUser{
			"bot@example.com": {ID: "oid-bot", UserPrincipalName: "bot@example.com"},
			"oid-alice":       {ID: "oid-alice", UserPrincipalName: "alice@example.com"},
		},
		replies: map[string][]msgraph.ChannelMessage{
			"400": {
				chatMsg("401", "oid-bot", "IdeaGraph Bot", "Created task ...", now),
				chatMsg("402", "oid-alice", "Alice", "here is more detail", now.Add(time.Second)),
			},
		},
	}
	p, st := newTeamsFixture(t, graph, "")

	item := &domain.Item{Title: "Frontend", ChannelID: "chan-1"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "From teams", ItemID: item.ID, SourceMessageID: "teams:400"}
	require.NoError(t, st.CreateTask(ctx, task))

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Comments)
	assert.Equal(t, 1, res.Self)

	comments, err := st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "here is more detail", comments[0].Body)
	assert.Equal(t, "teams:402", comments[0].MessageID)

	// Replies already ingested are not fetched again.
	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Comments)
}
