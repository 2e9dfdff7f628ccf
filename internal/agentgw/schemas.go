package agentgw

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	igerrors "ideagraph/internal/errors"
)

// ClassifierKind is the routing decision for an inbound message.
type ClassifierKind string

const (
	ClassifyCreate ClassifierKind = "create"
	ClassifyIgnore ClassifierKind = "ignore"
)

// ClassifierResult is the message-classifier agent's decision.
type ClassifierResult struct {
	Kind            ClassifierKind `json:"kind"`
	ItemID          string         `json:"item_id,omitempty"`
	TaskTitle       string         `json:"task_title,omitempty"`
	TaskDescription string         `json:"task_description,omitempty"`
	Reason          string         `json:"reason,omitempty"`
}

// Validate rejects decisions the pipeline cannot act on.
func (r *ClassifierResult) Validate() error {
	switch r.Kind {
	case ClassifyCreate:
		if r.TaskTitle == "" {
			return fmt.Errorf("create decision without task_title")
		}
		return nil
	case ClassifyIgnore:
		return nil
	default:
		return fmt.Errorf("unknown decision kind %q", r.Kind)
	}
}

// SummaryResult is the text-summary agent's payload.
type SummaryResult struct {
	Summary string `json:"summary"`
}

// DerivedTask is one task suggestion from text-analysis-task-derivation.
type DerivedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TaskDerivationResult is the task-derivation agent's payload.
type TaskDerivationResult struct {
	Tasks []DerivedTask `json:"tasks"`
}

// ExpansionResult is the question-optimization agent's payload.
type ExpansionResult struct {
	Language          string   `json:"language,omitempty"`
	Core              string   `json:"core"`
	Synonyms          []string `json:"synonyms,omitempty"`
	Phrases           []string `json:"phrases,omitempty"`
	Entities          []string `json:"entities,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Ban               []string `json:"ban,omitempty"`
	FollowupQuestions []string `json:"followup_questions,omitempty"`
}

// AnswerResult is the question-answering agent's payload: markdown with
// [#A1]-style citation markers referring to the supplied context snippets.
type AnswerResult struct {
	Answer string `json:"answer"`
}

// SupportResult is the payload shared by the advisor-style agents.
type SupportResult struct {
	Analysis    string   `json:"analysis"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Decode parses an agent result into a typed payload. Code fences are
// stripped and one jsonrepair pass is attempted before giving up; agents
// routinely emit slightly broken JSON.
func Decode[T any](raw string) (*T, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, igerrors.Permanent(fmt.Errorf("empty agent result"))
	}

	var payload T
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return &payload, nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, igerrors.Permanent(fmt.Errorf("agent result is not JSON: %w", err))
	}
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return nil, igerrors.Permanent(fmt.Errorf("agent result unusable after repair: %w", err))
	}
	return &payload, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
