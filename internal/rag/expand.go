// Package rag answers questions over the knowledge index: expand the
// question, retrieve semantic and keyword candidates, fuse and rerank,
// assemble a tiered context block, and ask the answering agent.
package rag

import (
	"context"
	"strings"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/logging"
)

// expand asks the question-optimization agent for query material. Any
// failure degrades to the raw question; expansion is an optimization,
// never a dependency.
func expand(ctx context.Context, gw agentgw.Gateway, logger logging.Logger, question string) agentgw.ExpansionResult {
	fallback := agentgw.ExpansionResult{Core: question}

	res, err := gw.Invoke(ctx, agentgw.AgentQuestionOptimize, question, nil)
	if err != nil {
		logger.Warn("rag: question expansion failed, using raw question: %v", err)
		return fallback
	}
	payload, err := agentgw.Decode[agentgw.ExpansionResult](res.Result)
	if err != nil {
		logger.Warn("rag: expansion result unusable: %v", err)
		return fallback
	}
	if strings.TrimSpace(payload.Core) == "" {
		payload.Core = question
	}
	return *payload
}

// semanticQuery builds the vector-leaning query string:
// core + top synonyms + top phrases + top tags.
func semanticQuery(exp agentgw.ExpansionResult) string {
	parts := []string{exp.Core}
	parts = append(parts, firstN(exp.Synonyms, 3)...)
	parts = append(parts, firstN(exp.Phrases, 2)...)
	parts = append(parts, firstN(exp.Tags, 2)...)
	return strings.Join(parts, " ")
}

// keywordQuery builds the lexical-leaning query string: tags + core.
func keywordQuery(exp agentgw.ExpansionResult) string {
	if len(exp.Tags) == 0 {
		return exp.Core
	}
	return strings.Join(exp.Tags, " ") + " " + exp.Core
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}
