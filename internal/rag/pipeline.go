package rag

import (
	"context"
	"fmt"
	"strings"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/domain"
	"ideagraph/internal/knowledge"
	"ideagraph/internal/logging"
)

const (
	// semanticAlpha leans the first retrieval pass toward the vector side.
	semanticAlpha = 0.6
	semanticLimit = 24

	// keywordAlpha leans the second pass toward lexical matching
	// (0.3 vector weight = 0.7 keyword weight).
	keywordAlpha = 0.3
	keywordLimit = 20

	itemSuggestionLimit = 5
)

// NoKnowledgeAnswer is returned when retrieval finds nothing to cite.
const NoKnowledgeAnswer = "No indexed knowledge matched this question. " +
	"Try rephrasing, or add the relevant documents first."

// Pipeline answers questions over the knowledge index.
type Pipeline struct {
	gateway agentgw.Gateway
	index   knowledge.Index
	logger  logging.Logger
}

// New creates the pipeline. index may be nil when the vector index is
// disabled; Answer then degrades to the no-knowledge response.
func New(gateway agentgw.Gateway, index knowledge.Index, logger logging.Logger) *Pipeline {
	return &Pipeline{
		gateway: gateway,
		index:   index,
		logger:  logging.OrNop(logger),
	}
}

// Answer runs the full pipeline and returns an unsaved exchange record.
// itemID scopes the same-item boost and tiering; it does not filter
// retrieval, cross-item knowledge stays eligible for tier C.
func (p *Pipeline) Answer(ctx context.Context, question, itemID, askedBy string) (*domain.QuestionAnswer, error) {
	qa := &domain.QuestionAnswer{ItemID: itemID, Question: question, AskedBy: askedBy}

	if p.index == nil {
		qa.Answer = NoKnowledgeAnswer
		return qa, nil
	}

	exp := expand(ctx, p.gateway, p.logger, question)

	sem, err := p.index.Search(ctx, semanticQuery(exp), semanticAlpha, semanticLimit, knowledge.Filter{})
	if err != nil {
		return nil, fmt.Errorf("semantic retrieval: %w", err)
	}
	kw, err := p.index.Search(ctx, keywordQuery(exp), keywordAlpha, keywordLimit, knowledge.Filter{})
	if err != nil {
		return nil, fmt.Errorf("keyword retrieval: %w", err)
	}

	candidates := fuse(sem, kw, exp.Tags, itemID)
	if len(candidates) == 0 {
		qa.Answer = NoKnowledgeAnswer
		return qa, nil
	}

	contextBlock, sources := assemble(candidates, itemID)
	answer, err := p.answer(ctx, question, contextBlock)
	if err != nil {
		return nil, err
	}

	qa.Answer = answer
	qa.Sources = sources
	return qa, nil
}

func (p *Pipeline) answer(ctx context.Context, question, contextBlock string) (string, error) {
	prompt := fmt.Sprintf(
		"%s\n\nAnswer the question using only the context below. Cite sources with their [#A1]-style markers.\n\n%s",
		question, contextBlock)

	res, err := p.gateway.Invoke(ctx, agentgw.AgentQuestionAnswer, prompt, map[string]any{
		"question": question,
		"context":  contextBlock,
	})
	if err != nil {
		return "", fmt.Errorf("answer agent: %w", err)
	}

	// Agents answer either as {"answer": ...} or as plain markdown.
	if payload, err := agentgw.Decode[agentgw.AnswerResult](res.Result); err == nil && payload.Answer != "" {
		return payload.Answer, nil
	}
	return strings.TrimSpace(res.Result), nil
}

// SuggestItems is the classifier's suggestion-only pre-query: the top
// matching Item objects for a message body.
func (p *Pipeline) SuggestItems(ctx context.Context, body string) []knowledge.Hit {
	if p.index == nil {
		return nil
	}
	hits, err := p.index.Search(ctx, body, semanticAlpha, itemSuggestionLimit,
		knowledge.Filter{Type: knowledge.TypeItem})
	if err != nil {
		p.logger.Warn("rag: item suggestion query failed: %v", err)
		return nil
	}
	return hits
}
