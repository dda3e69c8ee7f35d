// Package vecindex provides the semantic similarity index over memory
// embeddings. The index stores only (entry id, embedding) pairs; the
// memory store remains the single source of truth for entry content.
package vecindex

import (
	"context"
	"errors"
	"fmt"
)

// Scope is the (companion, user) pair that partitions all memory state.
// Every index operation is confined to one scope; cross-scope search is
// structurally impossible because each scope is a separate collection.
type Scope struct {
	CompanionID string
	UserID      string
}

func (s Scope) String() string {
	return fmt.Sprintf("companion_%s_user_%s", s.CompanionID, s.UserID)
}

// Hit is one search result: an entry id and its cosine similarity.
type Hit struct {
	EntryID string
	Score   float32
}

var ErrDimensionMismatch = errors.New("embedding dimensionality mismatch")

// Index is the similarity store contract. The memory store is its only
// writer; results are deterministic for a fixed index state and query,
// with ties broken by entry id ascending.
type Index interface {
	Insert(ctx context.Context, scope Scope, entryID string, embedding []float32) error
	Search(ctx context.Context, scope Scope, query []float32, k int) ([]Hit, error)
	Remove(ctx context.Context, scope Scope, entryID string) error
	Close() error
}
