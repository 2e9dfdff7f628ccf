package rag

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"ideagraph/internal/domain"
)

const (
	snippetMaxChars  = 400
	snippetMinChars  = 80
	contextMaxChars  = 2400
	contextMaxTokens = 600

	tierAMax = 3
	tierBMax = 3
	tierCMax = 2
)

// contextEntry is one cited snippet in the assembled block.
type contextEntry struct {
	label   string
	title   string
	snippet string
}

// assemble builds the tiered context block: tier A and B are same-item
// candidates by score, tier C the best of the rest. The block is capped at
// ~600 tokens (≈2400 chars); over the cap, the longest snippets shrink first.
func assemble(candidates []candidate, questionItemID string) (string, []domain.AnswerSource) {
	if len(candidates) == 0 {
		return "", nil
	}

	var same, other []candidate
	for _, c := range candidates {
		if c.sameItem {
			same = append(same, c)
		} else {
			other = append(other, c)
		}
	}

	var entries []contextEntry
	var sources []domain.AnswerSource

	add := func(tier string, list []candidate, max int) []candidate {
		for i := 0; i < len(list) && i < max; i++ {
			c := list[i]
			entries = append(entries, contextEntry{
				label:   fmt.Sprintf("#%s%d", tier, i+1),
				title:   c.object.Title,
				snippet: truncate(c.object.Description, snippetMaxChars),
			})
			sources = append(sources, domain.AnswerSource{
				ID:    c.object.ID,
				Title: c.object.Title,
				Type:  string(c.object.Type),
				Score: c.final,
			})
		}
		if len(list) > max {
			return list[max:]
		}
		return nil
	}

	same = add("A", same, tierAMax)
	add("B", same, tierBMax)
	add("C", other, tierCMax)

	entries = shrinkToBudget(entries)
	return render(entries), sources
}

func render(entries []contextEntry) string {
	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("[%s] %s — %s\n", e.label, e.title, e.snippet))
	}
	return b.String()
}

// shrinkToBudget trims the longest snippets first until the rendered block
// fits both the character and the token cap.
func shrinkToBudget(entries []contextEntry) []contextEntry {
	for {
		block := render(entries)
		if len([]rune(block)) <= contextMaxChars && countTokens(block) <= contextMaxTokens {
			return entries
		}

		longest := -1
		for i, e := range entries {
			if len([]rune(e.snippet)) <= snippetMinChars {
				continue
			}
			if longest < 0 || len([]rune(e.snippet)) > len([]rune(entries[longest].snippet)) {
				longest = i
			}
		}
		if longest < 0 {
			// Nothing left to shrink: drop the lowest-ranked entry.
			if len(entries) <= 1 {
				return entries
			}
			entries = entries[:len(entries)-1]
			continue
		}

		runes := []rune(entries[longest].snippet)
		next := len(runes) * 3 / 4
		if next < snippetMinChars {
			next = snippetMinChars
		}
		entries[longest].snippet = strings.TrimSpace(string(runes[:next])) + "…"
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// countTokens estimates tokens with cl100k_base when the encoding is
// available, else by the chars/4 rule. The encoding load fetches vocabulary
// data, so offline environments fall back silently.
func countTokens(s string) int {
	tokenizerOnce.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			tokenizer = enc
		}
	})
	if tokenizer != nil {
		return len(tokenizer.Encode(s, nil, nil))
	}
	return len(s) / 4
}
