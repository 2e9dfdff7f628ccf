// Package advisor produces advisory analyses for a task description:
// internal mode grounds on the own knowledge index, external mode on a web
// search. Neither mode modifies the task.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"ideagraph/internal/agentgw"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
	"ideagraph/internal/websearch"
)

// Mode selects the advisory source.
type Mode string

const (
	ModeInternal Mode = "internal"
	ModeExternal Mode = "external"
)

const (
	similarLimit   = 5
	searchHitLimit = 5
	searchAlpha    = 0.6
)

// Advisor runs advisory analyses.
type Advisor struct {
	gateway  agentgw.Gateway
	index    knowledge.Index
	searcher websearch.Searcher
	logger   logging.Logger
}

// New creates an advisor. index and searcher may be nil; the corresponding
// mode then fails with a feature-disabled error.
func New(gateway agentgw.Gateway, index knowledge.Index, searcher websearch.Searcher, logger logging.Logger) *Advisor {
	return &Advisor{
		gateway:  gateway,
		index:    index,
		searcher: searcher,
		logger:   logging.OrNop(logger),
	}
}

// Advise returns a markdown analysis for the task description.
func (a *Advisor) Advise(ctx context.Context, mode Mode, taskDescription string) (string, error) {
	switch mode {
	case ModeInternal:
		return a.adviseInternal(ctx, taskDescription)
	case ModeExternal:
		return a.adviseExternal(ctx, taskDescription)
	default:
		return "", igerrors.Permanent(fmt.Errorf("unknown advisor mode %q", mode))
	}
}

func (a *Advisor) adviseInternal(ctx context.Context, taskDescription string) (string, error) {
	if a.index == nil {
		return "", igerrors.Disabled("knowledge index")
	}

	hits, err := a.index.Search(ctx, taskDescription, searchAlpha, similarLimit*2, knowledge.Filter{})
	if err != nil {
		return "", fmt.Errorf("similar-object search: %w", err)
	}
	similar := distinctTypes(hits, similarLimit)

	var b strings.Builder
	b.WriteString("Analyze this task against prior knowledge and produce a markdown advisory.\n\n")
	fmt.Fprintf(&b, "Task:\n%s\n\nSimilar objects:\n", taskDescription)
	for _, hit := range similar {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", hit.Object.Type, hit.Object.Title,
			firstChars(hit.Object.Description, 200))
	}

	return a.invoke(ctx, agentgw.AgentAdvisorInternal, b.String(), map[string]any{
		"task_description": taskDescription,
		"similar_objects":  similar,
	})
}

func (a *Advisor) adviseExternal(ctx context.Context, taskDescription string) (string, error) {
	if a.searcher == nil {
		return "", igerrors.Disabled("web search")
	}

	hits, err := a.searcher.Search(ctx, taskDescription, searchHitLimit)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze this task using the web results below; cite sources by URL.\n\n")
	fmt.Fprintf(&b, "Task:\n%s\n\nSearch results:\n", taskDescription)
	for _, hit := range hits {
		fmt.Fprintf(&b, "- %s (%s): %s\n", hit.Title, hit.URL, hit.Snippet)
	}

	return a.invoke(ctx, agentgw.AgentAdvisorExternal, b.String(), map[string]any{
		"task_description": taskDescription,
		"search_hits":      hits,
	})
}

// AnalyzeThread produces an advisory reply for a support conversation (a
// Teams thread, pasted verbatim). Related knowledge is attached when the
// index is configured; without it the conversation goes to the agent alone.
func (a *Advisor) AnalyzeThread(ctx context.Context, conversation string) (string, error) {
	var related []knowledge.Hit
	if a.index != nil {
		hits, err := a.index.Search(ctx, conversation, searchAlpha, similarLimit*2, knowledge.Filter{})
		if err != nil {
			a.logger.Warn("advisor: related-knowledge search failed: %v", err)
		} else {
			related = distinctTypes(hits, similarLimit)
		}
	}

	var b strings.Builder
	b.WriteString("Analyze this support conversation and draft a helpful reply in markdown.\n\n")
	fmt.Fprintf(&b, "Conversation:\n%s\n", conversation)
	if len(related) > 0 {
		b.WriteString("\nRelated knowledge:\n")
		for _, hit := range related {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", hit.Object.Type, hit.Object.Title,
				firstChars(hit.Object.Description, 200))
		}
	}

	return a.invoke(ctx, agentgw.AgentTeamsSupport, b.String(), map[string]any{
		"conversation":      conversation,
		"related_knowledge": related,
	})
}

func (a *Advisor) invoke(ctx context.Context, agent, prompt string, params map[string]any) (string, error) {
	res, err := a.gateway.Invoke(ctx, agent, prompt, params)
	if err != nil {
		return "", fmt.Errorf("advisor agent: %w", err)
	}
	if payload, err := agentgw.Decode[agentgw.SupportResult](res.Result); err == nil && payload.Analysis != "" {
		return payload.Analysis, nil
	}
	return strings.TrimSpace(res.Result), nil
}

// distinctTypes keeps the highest-ranked hit per object type first, then
// fills the remainder by rank.
func distinctTypes(hits []knowledge.Hit, max int) []knowledge.Hit {
	var picked []knowledge.Hit
	seen := map[knowledge.Type]bool{}
	for _, hit := range hits {
		if len(picked) == max {
			return picked
		}
		if !seen[hit.Object.Type] {
			seen[hit.Object.Type] = true
			picked = append(picked, hit)
		}
	}
	for _, hit := range hits {
		if len(picked) == max {
			break
		}
		if !containsHit(picked, hit.ID) {
			picked = append(picked, hit)
		}
	}
	return picked
}

func containsHit(hits []knowledge.Hit, id string) bool {
	for _, h := range hits {
		if h.ID == id {
			return true
		}
	}
	return false
}

func firstChars(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}
