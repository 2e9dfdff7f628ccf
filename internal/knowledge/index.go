package knowledge

import (
	"context"
	"strings"
)

// Index is the vector collection behind knowledge search. Two backends
// exist: a local embedded store and a remote HTTP service. Upserts are
// idempotent; object ids are stable across runs.
type Index interface {
	// Upsert writes or replaces one object.
	Upsert(ctx context.Context, obj Object) error

	// Delete removes one object by id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteFileChunks removes every chunk object belonging to a file.
	DeleteFileChunks(ctx context.Context, fileID string) error

	// Search runs a hybrid query. alpha weights the vector side: 1.0 is
	// pure semantic, 0.0 pure keyword. filter narrows by type and item.
	Search(ctx context.Context, query string, alpha float64, limit int, filter Filter) ([]Hit, error)

	// Count returns the number of indexed objects.
	Count() int

	// Close flushes the backend.
	Close() error
}

// keywordScore is the lexical half of hybrid scoring: the fraction of
// query terms present in the object's text, case-insensitive.
func keywordScore(query, text string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(text)
	matched := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}
