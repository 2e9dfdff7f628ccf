package rag

import (
	"sort"
	"strings"

	"ideagraph/internal/knowledge"
)

const (
	weightSemantic = 0.6
	weightKeyword  = 0.2
	weightTagMatch = 0.15
	weightSameItem = 0.05

	keepCandidates = 6
)

// candidate is a fused retrieval result.
type candidate struct {
	object   knowledge.Object
	semScore float64
	kwScore  float64
	final    float64
	sameItem bool
}

// fuse dedupes the two retrieval passes by id, scores each candidate as
// 0.6·semantic + 0.2·keyword + 0.15·tag-match + 0.05·same-item, and keeps
// the top candidates. Missing component scores count as zero. On an exact
// score tie the same-item candidate ranks higher.
func fuse(sem, kw []knowledge.Hit, expandedTags []string, questionItemID string) []candidate {
	byID := map[string]*candidate{}
	order := []string{}

	for _, hit := range sem {
		byID[hit.ID] = &candidate{object: hit.Object, semScore: hit.Score}
		order = append(order, hit.ID)
	}
	for _, hit := range kw {
		if existing, ok := byID[hit.ID]; ok {
			existing.kwScore = hit.Score
			continue
		}
		byID[hit.ID] = &candidate{object: hit.Object, kwScore: hit.Score}
		order = append(order, hit.ID)
	}

	candidates := make([]candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		c.sameItem = questionItemID != "" && c.object.ItemID == questionItemID
		c.final = weightSemantic*c.semScore + weightKeyword*c.kwScore
		if tagsOverlap(expandedTags, c.object.Tags) {
			c.final += weightTagMatch
		}
		if c.sameItem {
			c.final += weightSameItem
		}
		candidates = append(candidates, *c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].final != candidates[j].final {
			return candidates[i].final > candidates[j].final
		}
		return candidates[i].sameItem && !candidates[j].sameItem
	})

	if len(candidates) > keepCandidates {
		candidates = candidates[:keepCandidates]
	}
	return candidates
}

func tagsOverlap(expanded, objectTags []string) bool {
	if len(expanded) == 0 || len(objectTags) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(objectTags))
	for _, tag := range objectTags {
		set[strings.ToLower(strings.TrimSpace(tag))] = struct{}{}
	}
	for _, tag := range expanded {
		if _, ok := set[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return true
		}
	}
	return false
}
