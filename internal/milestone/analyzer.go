// Package milestone turns raw context objects (meeting transcripts, mails,
// notes, file text) attached to a milestone into summaries and task
// proposals, and keeps the milestone's aggregated summary current.
package milestone

import (
	"context"
	"fmt"
	"strings"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/domain"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/store"
)

// Analyzer drives the per-context agent pipeline and the milestone-level
// summary aggregation.
type Analyzer struct {
	store   *store.Store
	gateway agentgw.Gateway
	sync    *knowledge.Sync
	logger  logging.Logger
}

// NewAnalyzer wires an analyzer.
func NewAnalyzer(st *store.Store, gateway agentgw.Gateway, sync *knowledge.Sync, logger logging.Logger) *Analyzer {
	return &Analyzer{store: st, gateway: gateway, sync: sync, logger: logging.OrNop(logger)}
}

// AnalyzeAll analyzes every unanalyzed context of the milestone, then
// recomputes the aggregated summary if anything changed. It keeps going past
// individual context failures and returns the first error alongside the
// count of contexts analyzed.
func (a *Analyzer) AnalyzeAll(ctx context.Context, milestoneID string) (int, error) {
	m, err := a.store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return 0, fmt.Errorf("milestone %s: %w", milestoneID, err)
	}
	pending, err := a.store.ListUnanalyzedContexts(ctx, milestoneID)
	if err != nil {
		return 0, err
	}

	analyzed := 0
	var firstErr error
	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return analyzed, err
		}
		if err := a.analyzeContext(ctx, m, c); err != nil {
			a.logger.Warn("milestone analyzer: context %s (%s): %v", c.ID, c.Title, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		analyzed++
	}

	if analyzed > 0 {
		if err := a.refreshSummary(ctx, m); err != nil {
			a.logger.Warn("milestone analyzer: summary for %s: %v", milestoneID, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return analyzed, firstErr
}

// AnalyzeContext analyzes a single context object by id and refreshes the
// milestone summary.
func (a *Analyzer) AnalyzeContext(ctx context.Context, contextID string) (*domain.MilestoneContextObject, error) {
	c, err := a.store.GetMilestoneContext(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", contextID, err)
	}
	m, err := a.store.GetMilestone(ctx, c.MilestoneID)
	if err != nil {
		return nil, fmt.Errorf("milestone %s: %w", c.MilestoneID, err)
	}
	if err := a.analyzeContext(ctx, m, c); err != nil {
		return nil, err
	}
	if err := a.refreshSummary(ctx, m); err != nil {
		a.logger.Warn("milestone analyzer: summary for %s: %v", m.ID, err)
	}
	return c, nil
}

// analyzeContext summarizes the content, derives task proposals, persists
// both and updates the knowledge index. The passed context object is
// mutated in place.
func (a *Analyzer) analyzeContext(ctx context.Context, m *domain.Milestone, c *domain.MilestoneContextObject) error {
	summary, err := a.summarize(ctx, c)
	if err != nil {
		return err
	}
	proposed := a.deriveTasks(ctx, c)

	if err := a.store.SaveContextAnalysis(ctx, c.ID, summary, proposed); err != nil {
		return err
	}
	c.Summary = summary
	c.ProposedTasks = proposed
	c.Analyzed = true
	a.sync.SyncContext(ctx, c, m.ItemID)
	return nil
}

func (a *Analyzer) summarize(ctx context.Context, c *domain.MilestoneContextObject) (string, error) {
	prompt := fmt.Sprintf("Summarize the following %s titled %q in a few sentences. "+
		"Respond as JSON: {\"summary\"}.\n\n%s", c.Kind, c.Title, c.Content)
	res, err := a.gateway.Invoke(ctx, agentgw.AgentSummary, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if payload, err := agentgw.Decode[agentgw.SummaryResult](res.Result); err == nil && payload.Summary != "" {
		return payload.Summary, nil
	}
	return strings.TrimSpace(res.Result), nil
}

// deriveTasks asks the task-derivation agent for suggestions. Derivation is
// best-effort: a failed or unusable response yields no proposals rather than
// blocking the summary.
func (a *Analyzer) deriveTasks(ctx context.Context, c *domain.MilestoneContextObject) []domain.ProposedTask {
	prompt := fmt.Sprintf("Extract actionable work items from the following %s. "+
		"Respond as JSON: {\"tasks\":[{\"title\",\"description\"}]}. "+
		"Return an empty list when nothing is actionable.\n\n%s", c.Kind, c.Content)
	res, err := a.gateway.Invoke(ctx, agentgw.AgentTaskDerivation, prompt, nil)
	if err != nil {
		a.logger.Warn("milestone analyzer: task derivation for %s: %v", c.ID, err)
		return nil
	}
	payload, err := agentgw.Decode[agentgw.TaskDerivationResult](res.Result)
	if err != nil {
		a.logger.Warn("milestone analyzer: task derivation for %s: unusable result: %v", c.ID, err)
		return nil
	}
	var proposed []domain.ProposedTask
	for _, t := range payload.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		proposed = append(proposed, domain.ProposedTask{
			Title:       strings.TrimSpace(t.Title),
			Description: strings.TrimSpace(t.Description),
		})
	}
	return proposed
}

// refreshSummary recomputes the milestone's aggregated summary from all
// analyzed context summaries via the enhancer agent.
func (a *Analyzer) refreshSummary(ctx context.Context, m *domain.Milestone) error {
	contexts, err := a.store.ListMilestoneContexts(ctx, m.ID)
	if err != nil {
		return err
	}
	var parts []string
	for _, c := range contexts {
		if c.Analyzed && c.Summary != "" {
			parts = append(parts, fmt.Sprintf("- [%s] %s: %s", c.Kind, c.Title, c.Summary))
		}
	}
	if len(parts) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Milestone %q", m.Name)
	if m.Description != "" {
		fmt.Fprintf(&b, " (%s)", m.Description)
	}
	b.WriteString(".\nRewrite the aggregated summary from the context summaries below. ")
	b.WriteString("Respond as JSON: {\"summary\"}.\n")
	if m.Summary != "" {
		b.WriteString("\nCurrent summary:\n" + m.Summary + "\n")
	}
	b.WriteString("\nContext summaries:\n" + strings.Join(parts, "\n"))

	res, err := a.gateway.Invoke(ctx, agentgw.AgentSummaryEnhance, b.String(), nil)
	if err != nil {
		return fmt.Errorf("enhance summary: %w", err)
	}
	summary := strings.TrimSpace(res.Result)
	if payload, err := agentgw.Decode[agentgw.SummaryResult](res.Result); err == nil && payload.Summary != "" {
		summary = payload.Summary
	}
	if summary == "" {
		return nil
	}
	if err := a.store.UpdateMilestoneSummary(ctx, m.ID, summary); err != nil {
		return err
	}
	m.Summary = summary
	return nil
}

// Materialize turns a context object's proposed tasks into real tasks under
// the milestone's item. Already-materialized proposals are skipped by title.
func (a *Analyzer) Materialize(ctx context.Context, contextID string) ([]*domain.Task, error) {
	c, err := a.store.GetMilestoneContext(ctx, contextID)
	if err != nil {
		return nil, fmt.Errorf("context %s: %w", contextID, err)
	}
	if !c.Analyzed {
		return nil, fmt.Errorf("context %s has not been analyzed yet", contextID)
	}
	m, err := a.store.GetMilestone(ctx, c.MilestoneID)
	if err != nil {
		return nil, fmt.Errorf("milestone %s: %w", c.MilestoneID, err)
	}

	existing, err := a.store.ListTasksByItem(ctx, m.ItemID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[strings.ToLower(t.Title)] = true
	}

	var created []*domain.Task
	for _, p := range c.ProposedTasks {
		if seen[strings.ToLower(p.Title)] {
			continue
		}
		task := &domain.Task{
			Title:       p.Title,
			Description: p.Description,
			ItemID:      m.ItemID,
		}
		if err := a.store.CreateTask(ctx, task); err != nil {
			return created, fmt.Errorf("create task %q: %w", p.Title, err)
		}
		a.sync.SyncTask(ctx, task)
		created = append(created, task)
	}
	a.logger.Info("milestone analyzer: materialized %d of %d proposals from context %s",
		len(created), len(c.ProposedTasks), contextID)
	return created, nil
}
