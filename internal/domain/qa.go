package domain

import "time"

// AnswerSource cites one knowledge object used to ground an answer.
type AnswerSource struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// QuestionAnswer is a persisted RAG exchange scoped to an item.
type QuestionAnswer struct {
	ID       string         `json:"id"`
	ItemID   string         `json:"item_id,omitempty"`
	Question string         `json:"question"`
	Answer   string         `json:"answer"` // markdown with [#A1]-style citations
	Sources  []AnswerSource `json:"sources,omitempty"`
	AskedBy  string         `json:"asked_by,omitempty"`
	// SavedAsKnowledge marks exchanges upserted back into the knowledge
	// collection as type QA.
	SavedAsKnowledge bool      `json:"saved_as_knowledge"`
	CreatedAt        time.Time `json:"created_at"`
}
