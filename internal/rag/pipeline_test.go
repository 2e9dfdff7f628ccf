package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/agentgw"
	"ideagraph/internal/knowledge"
)

// memIndex is a scripted index for pipeline tests.
type memIndex struct {
	hits map[string][]knowledge.Hit // keyed by a query substring
}

func (m *memIndex) Upsert(context.Context, knowledge.Object) error { return nil }
func (m *memIndex) Delete(context.Context, string) error           { return nil }
func (m *memIndex) DeleteFileChunks(context.Context, string) error { return nil }
func (m *memIndex) Count() int                                     { return 1 }
func (m *memIndex) Close() error                                   { return nil }

func (m *memIndex) Search(_ context.Context, query string, _ float64, _ int, filter knowledge.Filter) ([]knowledge.Hit, error) {
	for key, hits := range m.hits {
		if strings.Contains(query, key) {
			var out []knowledge.Hit
			for _, h := range hits {
				if filter.Type != "" && h.Object.Type != filter.Type {
					continue
				}
				out = append(out, h)
			}
			return out, nil
		}
	}
	return nil, nil
}

func hit(id string, score float64, itemID string, tags ...string) knowledge.Hit {
	return knowledge.Hit{
		ID:    id,
		Score: score,
		Object: knowledge.Object{
			ID:          id,
			Type:        knowledge.TypeTask,
			Title:       "title " + id,
			Description: "description of " + id,
			ItemID:      itemID,
			Tags:        tags,
		},
	}
}

func TestFuseWeightsAndDedupe(t *testing.T) {
	sem := []knowledge.Hit{hit("a", 0.9, "item-1"), hit("b", 0.8, "item-2")}
	kw := []knowledge.Hit{hit("a", 0.5, "item-1"), hit("c", 0.7, "item-2", "deploy")}

	out := fuse(sem, kw, []string{"deploy"}, "item-1")
	require.Len(t, out, 3)

	byID := map[string]candidate{}
	for _, c := range out {
		byID[c.object.ID] = c
	}

	// a: 0.6*0.9 + 0.2*0.5 + same-item 0.05
	assert.InDelta(t, 0.69, byID["a"].final, 1e-9)
	// b: 0.6*0.8
	assert.InDelta(t, 0.48, byID["b"].final, 1e-9)
	// c: 0.2*0.7 + tag-match 0.15
	assert.InDelta(t, 0.29, byID["c"].final, 1e-9)
	assert.Equal(t, "a", out[0].object.ID)
}

func TestFuseSameItemWinsTies(t *testing.T) {
	sem := []knowledge.Hit{hit("other", 0.8, "item-2"), hit("mine", 0.8, "item-1")}

	out := fuse(sem, nil, nil, "item-1")
	require.Len(t, out, 2)
	assert.Equal(t, "mine", out[0].object.ID, "equal semantic score: same-item candidate ranks higher")
}

func TestFuseKeepsTopSix(t *testing.T) {
	var sem []knowledge.Hit
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		sem = append(sem, hit(id, 0.5, "item-1"))
	}
	assert.Len(t, fuse(sem, nil, nil, ""), keepCandidates)
}

func TestAssembleTiers(t *testing.T) {
	candidates := fuse([]knowledge.Hit{
		hit("s1", 0.9, "item-1"), hit("s2", 0.8, "item-1"), hit("s3", 0.7, "item-1"),
		hit("s4", 0.6, "item-1"),
		hit("o1", 0.9, "item-2"), hit("o2", 0.2, "item-3"),
	}, nil, nil, "item-1")

	block, sources := assemble(candidates, "item-1")
	assert.Contains(t, block, "[#A1] title s1")
	assert.Contains(t, block, "[#A3] title s3")
	assert.Contains(t, block, "[#B1] title s4")
	assert.Contains(t, block, "[#C1] title o1")
	assert.True(t, strings.HasPrefix(block, "CONTEXT:\n"))
	assert.Len(t, sources, 6)
}

func TestAssembleCapsContextSize(t *testing.T) {
	long := strings.Repeat("word ", 200) // 1000 chars per snippet
	var candidates []candidate
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		candidates = append(candidates, candidate{
			object: knowledge.Object{ID: id, Title: id, Description: long, ItemID: "item-1"},
			final:  0.5, sameItem: true,
		})
	}

	block, _ := assemble(candidates, "item-1")
	assert.LessOrEqual(t, len([]rune(block)), contextMaxChars)
}

func TestAnswerHappyPath(t *testing.T) {
	gw := agentgw.NewMock().
		Respond(agentgw.AgentQuestionOptimize, `{"core":"deploy failure","tags":["deploy"]}`).
		Respond(agentgw.AgentQuestionAnswer, `{"answer":"Restart the runner [#A1]."}`)

	index := &memIndex{hits: map[string][]knowledge.Hit{
		"deploy": {hit("t1", 0.9, "item-1", "deploy")},
	}}

	qa, err := New(gw, index, nil).Answer(context.Background(), "why does deploy fail?", "item-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Restart the runner [#A1].", qa.Answer)
	require.Len(t, qa.Sources, 1)
	assert.Equal(t, "t1", qa.Sources[0].ID)
	assert.Equal(t, "item-1", qa.ItemID)
}

func TestAnswerExpansionFailureFallsBack(t *testing.T) {
	gw := agentgw.NewMock().
		Respond(agentgw.AgentQuestionAnswer, `plain text answer`)
	// No scripted expansion: the agent errors and the raw question is used.

	index := &memIndex{hits: map[string][]knowledge.Hit{
		"deploy": {hit("t1", 0.9, "item-1")},
	}}

	qa, err := New(gw, index, nil).Answer(context.Background(), "deploy broken", "", "")
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", qa.Answer)
}

func TestAnswerEmptyRetrieval(t *testing.T) {
	gw := agentgw.NewMock().
		Respond(agentgw.AgentQuestionOptimize, `{"core":"nothing"}`)

	qa, err := New(gw, &memIndex{}, nil).Answer(context.Background(), "nothing indexed", "", "")
	require.NoError(t, err)
	assert.Equal(t, NoKnowledgeAnswer, qa.Answer)
	assert.Empty(t, qa.Sources)
}

func TestAnswerWithoutIndex(t *testing.T) {
	qa, err := New(agentgw.NewMock(), nil, nil).Answer(context.Background(), "anything", "", "")
	require.NoError(t, err)
	assert.Equal(t, NoKnowledgeAnswer, qa.Answer)
}

func TestSuggestItemsFiltersType(t *testing.T) {
	itemHit := knowledge.Hit{ID: "i1", Score: 0.9, Object: knowledge.Object{ID: "i1", Type: knowledge.TypeItem}}
	taskHit := hit("t1", 0.8, "i1")

	index := &memIndex{hits: map[string][]knowledge.Hit{
		"billing": {itemHit, taskHit},
	}}

	hits := New(agentgw.NewMock(), index, nil).SuggestItems(context.Background(), "billing question")
	require.Len(t, hits, 1)
	assert.Equal(t, "i1", hits[0].ID)
}
