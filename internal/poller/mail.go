package poller

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

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

// MailTransport is the slice of the Graph client the mail poller needs.
type MailTransport interface {
	ListMessages(ctx context.Context, mailbox, folder string, since time.Time, max int) ([]msgraph.MailMessage, error)
	SendMail(ctx context.Context, mailbox, to, subject, body string, headers map[string]string) error
	MoveMessage(ctx context.Context, mailbox, messageID, destinationFolder string) error
	PostChannelMessage(ctx context.Context, teamID, channelID, htmlBody string) error
}

// MailPoller turns inbound mailbox messages into task comments or new tasks.
type MailPoller struct {
	settings   config.Settings
	graph      MailTransport
	extractor  *extract.Extractor
	classifier *classify.Classifier
	resolver   *identity.Resolver
	store      *store.Store
	sync       *knowledge.Sync
	logger     logging.Logger
}

// NewMailPoller wires the mail poller.
func NewMailPoller(settings config.Settings, graph MailTransport, extractor *extract.Extractor,
	classifier *classify.Classifier, resolver *identity.Resolver, st *store.Store,
	sync *knowledge.Sync, logger logging.Logger) *MailPoller {
	return &MailPoller{
		settings:   settings,
		graph:      graph,
		extractor:  extractor,
		classifier: classifier,
		resolver:   resolver,
		store:      st,
		sync:       sync,
		logger:     logging.OrNop(logger),
	}
}

func (p *MailPoller) Source() string { return SourceMail }

// PollOnce runs a single tick. The cursor advances only past messages whose
// side effects completed; a failing message stops the tick so the next one
// retries it, unless it has crossed the poison threshold.
func (p *MailPoller) PollOnce(ctx context.Context) (TickResult, error) {
	var res TickResult
	if !p.settings.Mail.Enabled {
		return res, igerrors.Disabled("mail poller")
	}

	cursor, err := p.store.GetCursor(ctx, SourceMail)
	if err != nil {
		return res, err
	}
	messages, err := p.graph.ListMessages(ctx, p.settings.Mail.Mailbox, p.settings.Mail.Folder,
		cursor, config.DefaultMaxFetchPerTick)
	if err != nil {
		return res, fmt.Errorf("fetch mail: %w", err)
	}
	res.Fetched = len(messages)

	advance := cursor
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if p.isSelf(msg) {
			res.Self++
			countOutcome(SourceMail, "self")
			advance = msg.Received
			continue
		}
		if poisoned, _ := p.store.IsPoisoned(ctx, SourceMail, msg.ID); poisoned {
			res.Poisoned++
			countOutcome(SourceMail, "poisoned")
			advance = msg.Received
			continue
		}

		if err := p.handle(ctx, msg, &res); err != nil {
			res.Failed++
			countOutcome(SourceMail, "failed")
			poisoned, recErr := p.store.RecordMessageFailure(ctx, SourceMail, msg.ID, err)
			if recErr != nil {
				p.logger.Error("mail poller: record failure for %s: %v", msg.ID, recErr)
			}
			if poisoned {
				p.logger.Critical("mail poller: message %s poisoned after repeated failures, skipping: %v", msg.ID, err)
				advance = msg.Received
				continue
			}
			p.logger.Error("mail poller: message %s failed, retrying next tick: %v", msg.ID, err)
			break
		}
		if err := p.store.ClearMessageFailures(ctx, SourceMail, msg.ID); err != nil {
			p.logger.Warn("mail poller: clear failures for %s: %v", msg.ID, err)
		}
		p.fileProcessed(ctx, msg)
		advance = msg.Received
	}

	if advance.After(cursor) {
		if err := p.store.AdvanceCursor(ctx, SourceMail, advance); err != nil {
			return res, err
		}
	}
	metrics.PollTicks.WithLabelValues(SourceMail).Inc()
	return res, nil
}

// fileProcessed moves a handled message into the configured processed folder.
// Best effort: the side effects are done and the cursor advances either way,
// so a failed move only leaves the message where it was.
func (p *MailPoller) fileProcessed(ctx context.Context, msg msgraph.MailMessage) {
	folder := p.settings.Mail.ProcessedFolder
	if folder == "" {
		return
	}
	if err := p.graph.MoveMessage(ctx, p.settings.Mail.Mailbox, msg.ID, folder); err != nil {
		p.logger.Warn("mail poller: file %s into %s: %v", msg.ID, folder, err)
	}
}

// announceInChannel posts a root message into the item's Teams channel so a
// mail-originated task surfaces where the team watches. Best effort: the
// task exists either way.
func (p *MailPoller) announceInChannel(ctx context.Context, task *domain.Task) {
	if !p.settings.Teams.Enabled || p.settings.Teams.TeamID == "" {
		return
	}
	item, err := p.store.GetItem(ctx, task.ItemID)
	if err != nil || item.ChannelID == "" {
		return
	}
	body := fmt.Sprintf("<p>New task <b>%s</b> %s created from mail.</p>",
		html.EscapeString(task.Title), html.EscapeString(thread.Token(task.ShortID)))
	if err := p.graph.PostChannelMessage(ctx, p.settings.Teams.TeamID, item.ChannelID, body); err != nil {
		p.logger.Warn("mail poller: announce task %s in channel %s: %v", task.ID, item.ChannelID, err)
	}
}

// isSelf drops the core's own outbound mail: the configured sender address
// and anything carrying a core-minted message id.
func (p *MailPoller) isSelf(msg msgraph.MailMessage) bool {
	if out := p.settings.Mail.OutboundSender; out != "" && strings.EqualFold(msg.FromAddress, out) {
		return true
	}
	return isSelfMessageID(msg.InternetMessageID)
}

func (p *MailPoller) handle(ctx context.Context, msg msgraph.MailMessage, res *TickResult) error {
	body := p.plainBody(msg)

	if shortID, ok := thread.ExtractShortID(msg.Subject); ok {
		task, err := p.store.GetTaskByShortID(ctx, shortID)
		if err == nil {
			return p.appendThreadReply(ctx, task, msg, body, res)
		}
		if !store.IsNotFound(err) {
			return err
		}
		// Token without a task: fall through to classification.
	}
	return p.classifyAndCreate(ctx, msg, body, res)
}

func (p *MailPoller) appendThreadReply(ctx context.Context, task *domain.Task, msg msgraph.MailMessage, body string, res *TickResult) error {
	duplicate, err := p.store.HasCommentWithMessageID(ctx, task.ID, msg.InternetMessageID)
	if err != nil {
		return err
	}
	if duplicate {
		res.Ignored++
		countOutcome(SourceMail, "duplicate")
		return nil
	}

	sender := p.resolver.ResolveOrUnknown(ctx, identity.Principal{
		Email:       msg.FromAddress,
		DisplayName: msg.FromName,
	})
	comment := &domain.TaskComment{
		TaskID:    task.ID,
		AuthorID:  sender.ID,
		Body:      body,
		Source:    domain.CommentSourceEmail,
		Direction: domain.DirectionInbound,
		Subject:   msg.Subject,
		MessageID: msg.InternetMessageID,
		From:      msg.FromAddress,
	}
	if err := p.store.AppendComment(ctx, comment); err != nil {
		return fmt.Errorf("append comment: %w", err)
	}

	p.notifyAssignee(ctx, task, msg)
	res.Comments++
	countOutcome(SourceMail, "comment")
	return nil
}

// notifyAssignee forwards a new thread comment to the task assignee. Failures
// are logged and do not fail the message: the comment is already persisted.
func (p *MailPoller) notifyAssignee(ctx context.Context, task *domain.Task, msg msgraph.MailMessage) {
	if task.AssigneeID == "" {
		return
	}
	assignee, err := p.store.GetUser(ctx, task.AssigneeID)
	if err != nil || assignee.Email == "" || strings.EqualFold(assignee.Email, msg.FromAddress) {
		return
	}
	subject := thread.FormatSubject("New comment on: "+task.Title, task.ShortID)
	body := fmt.Sprintf("%s commented on task %q:\n\n%s", msg.FromAddress, task.Title, msg.Body)
	if err := p.graph.SendMail(ctx, p.settings.Mail.Mailbox, assignee.Email, subject, body,
		map[string]string{OriginHeader: OriginValue}); err != nil {
		p.logger.Warn("mail poller: assignee notification for task %s: %v", task.ID, err)
	}
}

func (p *MailPoller) classifyAndCreate(ctx context.Context, msg msgraph.MailMessage, body string, res *TickResult) error {
	// A retried tick must not create the task twice.
	if existing, err := p.store.GetTaskBySourceMessage(ctx, msg.InternetMessageID); err == nil && existing != nil {
		res.Ignored++
		countOutcome(SourceMail, "duplicate")
		return nil
	} else if err != nil && !store.IsNotFound(err) {
		return err
	}

	decision := p.classifier.Classify(ctx, msg.Subject+"\n\n"+body, msg.FromAddress)
	if !decision.Create {
		p.logger.Debug("mail poller: ignoring %s (%s)", msg.ID, decision.Reason)
		res.Ignored++
		countOutcome(SourceMail, "ignored")
		return nil
	}

	sender := p.resolver.ResolveOrUnknown(ctx, identity.Principal{
		Email:       msg.FromAddress,
		DisplayName: msg.FromName,
	})
	task := &domain.Task{
		Title:           decision.TaskTitle,
		Description:     decision.TaskDescription,
		ItemID:          decision.ItemID,
		RequesterID:     sender.ID,
		SourceMessageID: msg.InternetMessageID,
	}
	if err := p.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	p.sync.SyncTask(ctx, task)

	inbound := &domain.TaskComment{
		TaskID:    task.ID,
		AuthorID:  sender.ID,
		Body:      body,
		Source:    domain.CommentSourceEmail,
		Direction: domain.DirectionInbound,
		Subject:   msg.Subject,
		MessageID: msg.InternetMessageID,
		From:      msg.FromAddress,
	}
	if err := p.store.AppendComment(ctx, inbound); err != nil {
		return fmt.Errorf("append inbound comment: %w", err)
	}

	if err := p.sendConfirmation(ctx, task, msg); err != nil {
		return err
	}
	p.announceInChannel(ctx, task)
	res.Created++
	countOutcome(SourceMail, "created")
	return nil
}

func (p *MailPoller) sendConfirmation(ctx context.Context, task *domain.Task, msg msgraph.MailMessage) error {
	subject := thread.FormatSubject("Re: "+msg.Subject, task.ShortID)
	body := fmt.Sprintf("Your message was turned into the task %q %s.\nReply to this mail to add comments to the task.",
		task.Title, thread.Token(task.ShortID))

	if err := p.graph.SendMail(ctx, p.settings.Mail.Mailbox, msg.FromAddress, subject, body,
		map[string]string{OriginHeader: OriginValue}); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	outbound := &domain.TaskComment{
		TaskID:    task.ID,
		AuthorID:  domain.SystemAuthor,
		Body:      body,
		Source:    domain.CommentSourceEmail,
		Direction: domain.DirectionOutbound,
		Subject:   subject,
		To:        msg.FromAddress,
	}
	if err := p.store.AppendComment(ctx, outbound); err != nil {
		return fmt.Errorf("append outbound comment: %w", err)
	}
	return nil
}

// plainBody flattens an HTML mail body to text; plain bodies pass through.
func (p *MailPoller) plainBody(msg msgraph.MailMessage) string {
	if !strings.EqualFold(msg.BodyContentType, "html") {
		return strings.TrimSpace(msg.Body)
	}
	text, err := p.extractor.Extract("body.html", "text/html", []byte(msg.Body))
	if err != nil {
		p.logger.Warn("mail poller: html body of %s not extractable, using raw: %v", msg.ID, err)
		return strings.TrimSpace(msg.Body)
	}
	return text
}
