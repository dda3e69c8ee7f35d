package vecindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemIndex backs the Index contract with chromem-go, a pure Go
// embedded vector database. One chromem collection per scope.
type ChromemIndex struct {
	db  *chromem.DB
	dim int

	mu          sync.RWMutex
	collections map[Scope]*chromem.Collection
}

func NewChromemIndex(dim int) (*ChromemIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dim must be positive, got %d", dim)
	}
	return &ChromemIndex{
		db:          chromem.NewDB(),
		dim:         dim,
		collections: make(map[Scope]*chromem.Collection),
	}, nil
}

func (x *ChromemIndex) collection(scope Scope) (*chromem.Collection, error) {
	x.mu.RLock()
	col, ok := x.collections[scope]
	x.mu.RUnlock()
	if ok {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if col, ok := x.collections[scope]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding
	// func is registered; distance is chromem's default cosine.
	col, err := x.db.GetOrCreateCollection(scope.String(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection for %s: %w", scope, err)
	}
	x.collections[scope] = col
	return col, nil
}

func (x *ChromemIndex) Insert(ctx context.Context, scope Scope, entryID string, embedding []float32) error {
	if len(embedding) != x.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), x.dim)
	}
	col, err := x.collection(scope)
	if err != nil {
		return err
	}

	emb := make([]float32, len(embedding))
	copy(emb, embedding)

	doc := chromem.Document{
		ID:        entryID,
		Content:   entryID,
		Embedding: emb,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("index insert %s: %w", entryID, err)
	}
	return nil
}

func (x *ChromemIndex) Search(ctx context.Context, scope Scope, query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), x.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	col, err := x.collection(scope)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	results, err := col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{EntryID: r.ID, Score: r.Similarity})
	}
	// Re-sort for a deterministic order: similarity descending, then
	// entry id ascending on ties.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EntryID < hits[j].EntryID
	})
	return hits, nil
}

func (x *ChromemIndex) Remove(ctx context.Context, scope Scope, entryID string) error {
	col, err := x.collection(scope)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, entryID); err != nil {
		return fmt.Errorf("index remove %s: %w", entryID, err)
	}
	return nil
}

// Close releases resources. chromem keeps everything in memory, so
// there is nothing to flush.
func (x *ChromemIndex) Close() error { return nil }
