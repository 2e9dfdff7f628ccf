package poller

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/classify"
	"ideagraph/internal/config"
	"ideagraph/internal/domain"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/extract"
	"ideagraph/internal/identity"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/metrics"
	"ideagraph/internal/msgraph"
	"ideagraph/internal/store"
	"ideagraph/internal/thread"
)

// TeamsTransport is the slice of the Graph client the Teams poller needs.
type TeamsTransport interface {
	ListChannelMessages(ctx context.Context, teamID, channelID string, since time.Time, max int) ([]msgraph.ChannelMessage, error)
	ListReplies(ctx context.Context, teamID, channelID, messageID string, since time.Time, max int) ([]msgraph.ChannelMessage, error)
	PostReply(ctx context.Context, teamID, channelID, messageID, htmlBody string) error
	GetUser(ctx context.Context, idOrUPN string) (*msgraph.GraphUser, error)
}

// TeamsPoller routes channel messages of channel-bound items into tasks and
// task comments. Each bound channel carries its own cursor.
type TeamsPoller struct {
	settings   config.Settings
	graph      TeamsTransport
	gateway    agentgw.Gateway
	extractor  *extract.Extractor
	classifier *classify.Classifier
	resolver   *identity.Resolver
	store      *store.Store
	sync       *knowledge.Sync
	logger     logging.Logger

	// bot is the resolved service principal, cached across ticks so the
	// self-filter does not re-resolve it on every message.
	bot *msgraph.GraphUser
}

// NewTeamsPoller wires the Teams poller.
func NewTeamsPoller(settings config.Settings, graph TeamsTransport, gateway agentgw.Gateway,
	extractor *extract.Extractor, classifier *classify.Classifier, resolver *identity.Resolver,
	st *store.Store, sync *knowledge.Sync, logger logging.Logger) *TeamsPoller {
	return &TeamsPoller{
		settings:   settings,
		graph:      graph,
		gateway:    gateway,
		extractor:  extractor,
		classifier: classifier,
		resolver:   resolver,
		store:      st,
		sync:       sync,
		logger:     logging.OrNop(logger),
	}
}

func (p *TeamsPoller) Source() string { return SourceTeams }

// PollOnce processes every channel-bound item: new root messages first, then
// replies on threads that originated tasks.
func (p *TeamsPoller) PollOnce(ctx context.Context) (TickResult, error) {
	var res TickResult
	if !p.settings.Teams.Enabled {
		return res, igerrors.Disabled("teams poller")
	}
	if err := p.resolveBot(ctx); err != nil {
		p.logger.Warn("teams poller: bot principal not resolvable yet: %v", err)
	}

	items, err := p.store.ListItems(ctx)
	if err != nil {
		return res, err
	}
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if item.ChannelID == "" {
			continue
		}
		if err := p.pollChannel(ctx, item.ChannelID, &res); err != nil {
			p.logger.Error("teams poller: channel %s: %v", item.ChannelID, err)
		}
		p.pollThreadReplies(ctx, item, &res)
	}
	metrics.PollTicks.WithLabelValues(SourceTeams).Inc()
	return res, nil
}

// resolveBot caches the configured bot principal's object id on first use.
func (p *TeamsPoller) resolveBot(ctx context.Context) error {
	if p.bot != nil || p.settings.Teams.BotUPN == "" {
		return nil
	}
	bot, err := p.graph.GetUser(ctx, p.settings.Teams.BotUPN)
	if err != nil {
		return err
	}
	p.bot = bot
	return nil
}

func (p *TeamsPoller) pollChannel(ctx context.Context, channelID string, res *TickResult) error {
	cursorKey := SourceTeams + ":" + channelID
	cursor, err := p.store.GetCursor(ctx, cursorKey)
	if err != nil {
		return err
	}
	messages, err := p.graph.ListChannelMessages(ctx, p.settings.Teams.TeamID, channelID,
		cursor, config.DefaultMaxFetchPerTick)
	if err != nil {
		return fmt.Errorf("fetch channel messages: %w", err)
	}
	res.Fetched += len(messages)

	advance := cursor
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		sender := p.enrichSender(ctx, msg)
		if p.isSelf(msg, sender) {
			res.Self++
			countOutcome(SourceTeams, "self")
			advance = msg.Created
			continue
		}
		if poisoned, _ := p.store.IsPoisoned(ctx, SourceTeams, msg.ID); poisoned {
			res.Poisoned++
			countOutcome(SourceTeams, "poisoned")
			advance = msg.Created
			continue
		}

		if err := p.handleRoot(ctx, channelID, msg, sender, res); err != nil {
			res.Failed++
			countOutcome(SourceTeams, "failed")
			poisoned, recErr := p.store.RecordMessageFailure(ctx, SourceTeams, msg.ID, err)
			if recErr != nil {
				p.logger.Error("teams poller: record failure for %s: %v", msg.ID, recErr)
			}
			if poisoned {
				p.logger.Critical("teams poller: message %s poisoned after repeated failures, skipping: %v", msg.ID, err)
				advance = msg.Created
				continue
			}
			p.logger.Error("teams poller: message %s failed, retrying next tick: %v", msg.ID, err)
			break
		}
		if err := p.store.ClearMessageFailures(ctx, SourceTeams, msg.ID); err != nil {
			p.logger.Warn("teams poller: clear failures for %s: %v", msg.ID, err)
		}
		advance = msg.Created
	}

	if advance.After(cursor) {
		return p.store.AdvanceCursor(ctx, cursorKey, advance)
	}
	return nil
}

// enrichSender resolves the sender's UPN and mail by object id. Channel
// messages carry only the object id and display name.
func (p *TeamsPoller) enrichSender(ctx context.Context, msg msgraph.ChannelMessage) *msgraph.GraphUser {
	if msg.SenderID == "" {
		return nil
	}
	user, err := p.graph.GetUser(ctx, msg.SenderID)
	if err != nil {
		p.logger.Debug("teams poller: sender %s not resolvable: %v", msg.SenderID, err)
		return nil
	}
	return user
}

// isSelf compares object id first, then UPN, then display name against the
// cached bot principal so the poller never replies to its own replies.
func (p *TeamsPoller) isSelf(msg msgraph.ChannelMessage, sender *msgraph.GraphUser) bool {
	if p.bot != nil && msg.SenderID != "" && msg.SenderID == p.bot.ID {
		return true
	}
	botUPN := strings.ToLower(strings.TrimSpace(p.settings.Teams.BotUPN))
	if botUPN != "" && sender != nil {
		if strings.ToLower(strings.TrimSpace(sender.UserPrincipalName)) == botUPN {
			return true
		}
	}
	if p.bot != nil && p.bot.DisplayName != "" && msg.SenderName == p.bot.DisplayName {
		return true
	}
	return false
}

func (p *TeamsPoller) handleRoot(ctx context.Context, channelID string, msg msgraph.ChannelMessage,
	sender *msgraph.GraphUser, res *TickResult) error {
	body := p.plainBody(msg)

	if shortID, ok := thread.ExtractShortID(body); ok {
		task, err := p.store.GetTaskByShortID(ctx, shortID)
		if err == nil {
			return p.appendReplyComment(ctx, channelID, task, msg, sender, body, res)
		}
		if !store.IsNotFound(err) {
			return err
		}
	}
	return p.classifyAndCreate(ctx, channelID, msg, sender, body, res)
}

func (p *TeamsPoller) appendReplyComment(ctx context.Context, channelID string, task *domain.Task,
	msg msgraph.ChannelMessage, sender *msgraph.GraphUser, body string, res *TickResult) error {
	ref := teamsMessageRef + msg.ID
	duplicate, err := p.store.HasCommentWithMessageID(ctx, task.ID, ref)
	if err != nil {
		return err
	}
	if duplicate {
		res.Ignored++
		countOutcome(SourceTeams, "duplicate")
		return nil
	}

	author := p.resolver.ResolveOrUnknown(ctx, p.principalOf(msg, sender))
	comment := &domain.TaskComment{
		TaskID:    task.ID,
		AuthorID:  author.ID,
		Body:      body,
		Source:    domain.CommentSourceTeams,
		Direction: domain.DirectionInbound,
		MessageID: ref,
		From:      msg.SenderName,
	}
	if err := p.store.AppendComment(ctx, comment); err != nil {
		return fmt.Errorf("append comment: %w", err)
	}

	p.notifyAssignee(ctx, channelID, task, msg)
	res.Comments++
	countOutcome(SourceTeams, "comment")
	return nil
}

// notifyAssignee pings the assignee in the same thread. Best effort.
func (p *TeamsPoller) notifyAssignee(ctx context.Context, channelID string, task *domain.Task, msg msgraph.ChannelMessage) {
	if task.AssigneeID == "" {
		return
	}
	assignee, err := p.store.GetUser(ctx, task.AssigneeID)
	if err != nil {
		return
	}
	rootID := msg.ReplyToID
	if rootID == "" {
		rootID = msg.ID
	}
	note := fmt.Sprintf("<p>%s: new comment on task %s %s</p>",
		html.EscapeString(assignee.DisplayName), html.EscapeString(task.Title),
		html.EscapeString(thread.Token(task.ShortID)))
	if err := p.graph.PostReply(ctx, p.settings.Teams.TeamID, channelID, rootID, note); err != nil {
		p.logger.Warn("teams poller: assignee notification for task %s: %v", task.ID, err)
	}
}

func (p *TeamsPoller) classifyAndCreate(ctx context.Context, channelID string, msg msgraph.ChannelMessage,
	sender *msgraph.GraphUser, body string, res *TickResult) error {
	ref := teamsMessageRef + msg.ID
	if existing, err := p.store.GetTaskBySourceMessage(ctx, ref); err == nil && existing != nil {
		res.Ignored++
		countOutcome(SourceTeams, "duplicate")
		return nil
	} else if err != nil && !store.IsNotFound(err) {
		return err
	}

	// Candidates are the items bound to this channel, not a global search.
	candidates, err := p.channelCandidates(ctx, channelID)
	if err != nil {
		return err
	}
	decision := p.classifier.ClassifyAmong(ctx, body, msg.SenderName, candidates)
	if !decision.Create {
		p.logger.Debug("teams poller: ignoring %s (%s)", msg.ID, decision.Reason)
		res.Ignored++
		countOutcome(SourceTeams, "ignored")
		return nil
	}

	author := p.resolver.ResolveOrUnknown(ctx, p.principalOf(msg, sender))
	task := &domain.Task{
		Title:           decision.TaskTitle,
		Description:     decision.TaskDescription,
		ItemID:          decision.ItemID,
		RequesterID:     author.ID,
		SourceMessageID: ref,
	}
	if err := p.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	p.sync.SyncTask(ctx, task)

	inbound := &domain.TaskComment{
		TaskID:    task.ID,
		AuthorID:  author.ID,
		Body:      body,
		Source:    domain.CommentSourceTeams,
		Direction: domain.DirectionInbound,
		MessageID: ref,
		From:      msg.SenderName,
	}
	if err := p.store.AppendComment(ctx, inbound); err != nil {
		return fmt.Errorf("append inbound comment: %w", err)
	}

	if err := p.postAcknowledgement(ctx, channelID, msg.ID, task); err != nil {
		return err
	}
	res.Created++
	countOutcome(SourceTeams, "created")
	return nil
}

// channelCandidates builds the classifier candidate set from the items bound
// to the channel. Channel-to-item binding is exact, so no vector search runs.
func (p *TeamsPoller) channelCandidates(ctx context.Context, channelID string) ([]knowledge.Hit, error) {
	items, err := p.store.ListItemsByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("list channel items: %w", err)
	}
	hits := make([]knowledge.Hit, 0, len(items))
	for _, item := range items {
		hits = append(hits, knowledge.Hit{ID: item.ID, Object: knowledge.Object{
			ID:          item.ID,
			Type:        knowledge.TypeItem,
			Title:       item.Title,
			Description: item.Description,
		}})
	}
	return hits, nil
}

// postAcknowledgement replies in-thread with the new task's token, using the
// configured welcome template when one is set. The markdown is rendered to
// HTML by the converter agent; when that fails the raw text is posted escaped.
func (p *TeamsPoller) postAcknowledgement(ctx context.Context, channelID, messageID string, task *domain.Task) error {
	markdown := p.acknowledgementText(task)

	htmlBody := "<p>" + strings.ReplaceAll(html.EscapeString(markdown), "\n", "<br>") + "</p>"
	if rendered, err := p.gateway.Invoke(ctx, agentgw.AgentMarkdownToHTML, markdown, nil); err == nil {
		if out := strings.TrimSpace(rendered.Result); out != "" {
			htmlBody = out
		}
	} else {
		p.logger.Debug("teams poller: markdown conversion failed, posting plain: %v", err)
	}

	if err := p.graph.PostReply(ctx, p.settings.Teams.TeamID, channelID, messageID, htmlBody); err != nil {
		return fmt.Errorf("post acknowledgement: %w", err)
	}

	outbound := &domain.TaskComment{
		TaskID:    task.ID,
		AuthorID:  domain.SystemAuthor,
		Body:      markdown,
		Source:    domain.CommentSourceTeams,
		Direction: domain.DirectionOutbound,
	}
	if err := p.store.AppendComment(ctx, outbound); err != nil {
		return fmt.Errorf("append outbound comment: %w", err)
	}
	return nil
}

// acknowledgementText expands the welcome template, falling back to the
// built-in wording when none is configured.
func (p *TeamsPoller) acknowledgementText(task *domain.Task) string {
	if tpl := strings.TrimSpace(p.settings.Teams.WelcomeTemplate); tpl != "" {
		return strings.NewReplacer(
			"{{title}}", task.Title,
			"{{token}}", thread.Token(task.ShortID),
		).Replace(tpl)
	}
	return fmt.Sprintf("Created task **%s** %s.\nMention the token in this channel to add comments.",
		task.Title, thread.Token(task.ShortID))
}

// pollThreadReplies ingests replies on the root messages that created tasks,
// so follow-ups without an explicit token still land on the right task.
func (p *TeamsPoller) pollThreadReplies(ctx context.Context, item *domain.Item, res *TickResult) {
	tasks, err := p.store.ListTasksByItem(ctx, item.ID)
	if err != nil {
		p.logger.Warn("teams poller: list tasks of %s: %v", item.ID, err)
		return
	}
	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		rootID, ok := strings.CutPrefix(task.SourceMessageID, teamsMessageRef)
		if !ok {
			continue
		}
		cursorKey := SourceTeams + ":thread:" + rootID
		cursor, err := p.store.GetCursor(ctx, cursorKey)
		if err != nil {
			continue
		}
		replies, err := p.graph.ListReplies(ctx, p.settings.Teams.TeamID, item.ChannelID, rootID,
			cursor, config.DefaultMaxFetchPerTick)
		if err != nil {
			p.logger.Warn("teams poller: replies of %s: %v", rootID, err)
			continue
		}

		advance := cursor
		for _, reply := range replies {
			sender := p.enrichSender(ctx, reply)
			if p.isSelf(reply, sender) {
				res.Self++
				countOutcome(SourceTeams, "self")
				advance = reply.Created
				continue
			}
			body := p.plainBody(reply)
			if err := p.appendReplyComment(ctx, item.ChannelID, task, reply, sender, body, res); err != nil {
				p.logger.Error("teams poller: reply %s on task %s: %v", reply.ID, task.ID, err)
				break
			}
			advance = reply.Created
		}
		if advance.After(cursor) {
			if err := p.store.AdvanceCursor(ctx, cursorKey, advance); err != nil {
				p.logger.Warn("teams poller: advance thread cursor %s: %v", rootID, err)
			}
		}
	}
}

func (p *TeamsPoller) principalOf(msg msgraph.ChannelMessage, sender *msgraph.GraphUser) identity.Principal {
	principal := identity.Principal{
		ObjectID:    msg.SenderID,
		DisplayName: msg.SenderName,
	}
	if sender != nil {
		principal.UPN = sender.UserPrincipalName
		principal.Email = sender.Mail
		if sender.DisplayName != "" {
			principal.DisplayName = sender.DisplayName
		}
	}
	return principal
}

func (p *TeamsPoller) plainBody(msg msgraph.ChannelMessage) string {
	if !strings.EqualFold(msg.BodyContentType, "html") {
		return strings.TrimSpace(msg.Body)
	}
	text, err := p.extractor.Extract("message.html", "text/html", []byte(msg.Body))
	if err != nil {
		return strings.TrimSpace(msg.Body)
	}
	return text
}
