package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/classify"
	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/extract"
	"ideagraph/internal/identity"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/store"
)

type sentMail struct {
	To, Subject, Body string
	Headers           map[string]string
}

type fakeMail struct {
	inbox     []msgraph.MailMessage
	sent      []sentMail
	moved     []string
	announced []string
	sendErr   error
	moveErr   error
}

func (f *fakeMail) ListMessages(ctx context.Context, mailbox, folder string, since time.Time, max int) ([]msgraph.MailMessage, error) {
	var out []msgraph.MailMessage
	for _, m := range f.inbox {
		if m.Received.After(since) && len(out) < max {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMail) SendMail(ctx context.Context, mailbox, to, subject, body string, headers map[string]string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body, Headers: headers})
	return nil
}

func (f *fakeMail) MoveMessage(ctx context.Context, mailbox, messageID, destinationFolder string) error {
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moved = append(f.moved, messageID+"->"+destinationFolder)
	return nil
}

func (f *fakeMail) PostChannelMessage(ctx context.Context, teamID, channelID, htmlBody string) error {
	f.announced = append(f.announced, channelID+": "+htmlBody)
	return nil
}

type recordingIndex struct {
	knowledge.Index
	upserts []knowledge.Object
}

func (r *recordingIndex) Upsert(ctx context.Context, obj knowledge.Object) error {
	r.upserts = append(r.upserts, obj)
	return nil
}

type fixedSuggester struct{ hits []knowledge.Hit }

func (s fixedSuggester) SuggestItems(ctx context.Context, body string) []knowledge.Hit {
	return s.hits
}

func mailSettings() config.Settings {
	return config.Settings{Mail: config.MailSettings{
		Enabled:        true,
		Mailbox:        "bot@example.com",
		Folder:         "Inbox",
		OutboundSender: "bot@example.com",
	}}
}

func newMailFixture(t *testing.T, graph *fakeMail, classifierResult string) (*MailPoller, *store.Store, *recordingIndex) {
	t.Helper()
	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gw := agentgw.NewMock()
	if classifierResult != "" {
		gw.Respond(agentgw.AgentClassifier, classifierResult)
	}
	idx := &recordingIndex{}
	sync := knowledge.NewSync(st, idx, "https://app.example.com", nil)
	classifier := classify.New(gw, fixedSuggester{}, "", nil)

	p := NewMailPoller(mailSettings(), graph, extract.New(nil), classifier,
		identity.NewResolver(st), st, sync, nil)
	return p, st, idx
}

func mailAt(id, imid, from, subject, body string, at time.Time) msgraph.MailMessage {
	return msgraph.MailMessage{
		ID:                id,
		InternetMessageID: imid,
		FromAddress:       from,
		Subject:           subject,
		Body:              body,
		BodyContentType:   "text",
		Received:          at,
	}
}

func TestMailPollerCreatesTaskFromClassifiedMessage(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeMail{inbox: []msgraph.MailMessage{
		mailAt("m1", "<abc@ext>", "alice@example.com", "Printer is broken", "The office printer jams.", now),
	}}

	p, st, idx := newMailFixture(t, graph, `{"kind":"create","item_id":"","task_title":"Fix printer","task_description":"The office printer jams."}`)
	item := &domain.Item{Title: "Office"}
	require.NoError(t, st.CreateItem(ctx, item))
	p.classifier = classify.New(agentgw.NewMock().Respond(agentgw.AgentClassifier,
		`{"kind":"create","item_id":"`+item.ID+`","task_title":"Fix printer","task_description":"The office printer jams."}`),
		fixedSuggester{}, "", nil)

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	task, err := st.GetTaskBySourceMessage(ctx, "<abc@ext>")
	require.NoError(t, err)
	assert.Equal(t, "Fix printer", task.Title)
	assert.Equal(t, item.ID, task.ItemID)
	require.Len(t, idx.upserts, 1)

	// Confirmation carries the thread token and the origin marker.
	require.Len(t, graph.sent, 1)
	assert.Equal(t, "alice@example.com", graph.sent[0].To)
	assert.Contains(t, graph.sent[0].Subject, "IG-TASK:#"+task.ShortID)
	assert.Equal(t, OriginValue, graph.sent[0].Headers[OriginHeader])

	// Inbound original plus outbound confirmation.
	comments, err := st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, domain.DirectionInbound, comments[0].Direction)
	assert.Equal(t, domain.DirectionOutbound, comments[1].Direction)

	// Cursor advanced past the message: the next tick fetches nothing.
	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
}

func TestMailPollerRoutesTokenReplyAsComment(t *testing.T) {
	ctx := context.Background()
	graph := &fakeMail{}
	p, st, _ := newMailFixture(t, graph, "")

	item := &domain.Item{Title: "Office"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Fix printer", ItemID: item.ID}
	require.NoError(t, st.CreateTask(ctx, task))

	graph.inbox = []msgraph.MailMessage{
		mailAt("m2", "<reply@ext>", "alice@example.com",
			"Re: Fix printer [IG-TASK:#"+task.ShortID+"]", "Still broken after restart.", time.Now()),
	}

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Comments)

	comments, err := st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Still broken after restart.", comments[0].Body)
	assert.Equal(t, domain.CommentSourceEmail, comments[0].Source)
	assert.Equal(t, "<reply@ext>", comments[0].MessageID)

	// Same message id handled again (a retried tick): deduplicated.
	var retry TickResult
	require.NoError(t, p.handle(ctx, graph.inbox[0], &retry))
	assert.Equal(t, 1, retry.Ignored)
	comments, err = st.ListComments(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestMailPollerFilesProcessedMessages(t *testing.T) {
	ctx := context.Background()
	graph := &fakeMail{}
	p, st, _ := newMailFixture(t, graph, "")
	p.settings.Mail.ProcessedFolder = "Processed"

	item := &domain.Item{Title: "Office"}
	require.NoError(t, st.CreateItem(ctx, item))
	task := &domain.Task{Title: "Fix printer", ItemID: item.ID}
	require.NoError(t, st.CreateTask(ctx, task))

	graph.inbox = []msgraph.MailMessage{
		mailAt("m6", "<filed@ext>", "alice@example.com",
			"Re: Fix printer [IG-TASK:#"+task.ShortID+"]", "update", time.Now()),
	}

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Comments)
	assert.Equal(t, []string{"m6->Processed"}, graph.moved)

	// A failing move is logged only: the side effects are done and the
	// cursor still advances.
	graph.moveErr = assert.AnError
	graph.inbox = append(graph.inbox,
		mailAt("m7", "<filed2@ext>", "alice@example.com",
			"Re: Fix printer [IG-TASK:#"+task.ShortID+"]", "another update", time.Now().Add(time.Second)))

	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Comments)

	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
}

func TestMailPollerAnnouncesTaskInItemChannel(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeMail{inbox: []msgraph.MailMessage{
		mailAt("m8", "<announce@ext>", "alice@example.com", "Printer is broken", "The office printer jams.", now),
	}}

	p, st, _ := newMailFixture(t, graph, "")
	p.settings.Teams = config.TeamsSettings{Enabled: true, TeamID: "team-1"}

	item := &domain.Item{Title: "Office", ChannelID: "chan-1"}
	require.NoError(t, st.CreateItem(ctx, item))
	p.classifier = classify.New(agentgw.NewMock().Respond(agentgw.AgentClassifier,
		`{"kind":"create","item_id":"`+item.ID+`","task_title":"Fix printer","task_description":"The office printer jams."}`),
		fixedSuggester{}, "", nil)

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	task, err := st.GetTaskBySourceMessage(ctx, "<announce@ext>")
	require.NoError(t, err)
	require.Len(t, graph.announced, 1)
	assert.Contains(t, graph.announced[0], "chan-1: ")
	assert.Contains(t, graph.announced[0], "Fix printer")
	assert.Contains(t, graph.announced[0], "[IG-TASK:#"+task.ShortID+"]")
}

func TestMailPollerDropsOwnMessages(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeMail{inbox: []msgraph.MailMessage{
		mailAt("m3", "<x@ext>", "bot@example.com", "Auto reply", "confirmation", now),
		mailAt("m4", "<ideagraph-123@core>", "carol@example.com", "Fwd", "forwarded confirmation", now.Add(time.Second)),
	}}
	p, _, _ := newMailFixture(t, graph, "")

	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Self)
	assert.Zero(t, res.Created)
	assert.Empty(t, graph.sent)
}

func TestMailPollerPoisonsRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	graph := &fakeMail{
		inbox: []msgraph.MailMessage{mailAt("m5", "<bad@ext>", "dave@example.com", "Broken thing", "body", now)},
	}

	// The classifier targets an item that does not exist, so task creation
	// fails on every tick until the message crosses the poison threshold.
	p, _, _ := newMailFixture(t, graph,
		`{"kind":"create","item_id":"no-such-item","task_title":"Broken thing","task_description":"body"}`)

	for i := 0; i < store.PoisonThreshold-1; i++ {
		res, err := p.PollOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed, "tick %d", i)
	}

	// The threshold tick marks the message poisoned; it still counts failed.
	res, err := p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	// The next tick skips it and advances the cursor.
	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Poisoned)

	res, err = p.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
}

func TestMailPollerDisabled(t *testing.T) {
	p := NewMailPoller(config.Settings{}, &fakeMail{}, extract.New(nil), nil, nil, nil, nil, nil)
	_, err := p.PollOnce(context.Background())
	assert.True(t, igerrors.IsDisabled(err))
}
