package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/vecindex"
)

// LocalStore keeps memory in-process, backed by an embedded vector
// index. For local/dev use; production deployments use PostgresStore.
type LocalStore struct {
	mu         sync.RWMutex
	turns      map[Scope][]Turn
	entries    map[Scope]map[string]Entry
	watermarks map[Scope]int64
	nextTurnID int64

	index vecindex.Index
	dim   int
}

func NewLocalStore(index vecindex.Index, embeddingDim int) *LocalStore {
	return &LocalStore{
		turns:      make(map[Scope][]Turn),
		entries:    make(map[Scope]map[string]Entry),
		watermarks: make(map[Scope]int64),
		index:      index,
		dim:        embeddingDim,
	}
}

func (s *LocalStore) AppendTurn(_ context.Context, turn Turn) (int64, error) {
	if turn.CompanionID == "" || turn.UserID == "" {
		return 0, fmt.Errorf("append turn: scope is required")
	}
	if turn.Role != RoleUser && turn.Role != RoleCompanion {
		return 0, fmt.Errorf("append turn: invalid role %q", turn.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTurnID++
	turn.ID = s.nextTurnID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	scope := Scope{CompanionID: turn.CompanionID, UserID: turn.UserID}
	s.turns[scope] = append(s.turns[scope], turn)
	return turn.ID, nil
}

func (s *LocalStore) RecentTurns(_ context.Context, scope Scope, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arr := s.turns[scope]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *LocalStore) TurnsAfter(_ context.Context, scope Scope, afterID int64) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Turn
	for _, t := range s.turns[scope] {
		if t.ID > afterID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *LocalStore) Remember(ctx context.Context, scope Scope, content string, embedding []float32, importance float64, sourceTurnID int64) (string, error) {
	if len(embedding) != s.dim {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}

	entry := Entry{
		ID:           uuid.NewString(),
		CompanionID:  scope.CompanionID,
		UserID:       scope.UserID,
		SourceTurnID: sourceTurnID,
		Content:      content,
		Embedding:    embedding,
		Importance:   importance,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	if s.entries[scope] == nil {
		s.entries[scope] = make(map[string]Entry)
	}
	s.entries[scope][entry.ID] = entry
	s.mu.Unlock()

	// The store is the index's sole writer; an entry is visible to
	// recall only once both writes succeed.
	if err := s.index.Insert(ctx, scope, entry.ID, embedding); err != nil {
		s.mu.Lock()
		delete(s.entries[scope], entry.ID)
		s.mu.Unlock()
		return "", fmt.Errorf("remember: %w", err)
	}
	return entry.ID, nil
}

func (s *LocalStore) SemanticRecall(ctx context.Context, scope Scope, query []float32, k int) ([]ScoredEntry, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dim)
	}

	hits, err := s.index.Search(ctx, scope, query, k)
	if err != nil {
		return nil, fmt.Errorf("semantic recall: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScoredEntry, 0, len(hits))
	for _, h := range hits {
		entry, ok := s.entries[scope][h.EntryID]
		if !ok {
			return nil, fmt.Errorf("%w: entry %s in scope %s", ErrIndexInconsistency, h.EntryID, scope)
		}
		if entry.Tombstoned {
			continue
		}
		out = append(out, ScoredEntry{Entry: entry, Score: h.Score})
	}
	return out, nil
}

func (s *LocalStore) TombstoneEntry(ctx context.Context, scope Scope, entryID string) error {
	s.mu.Lock()
	entry, ok := s.entries[scope][entryID]
	if !ok {
		s.mu.Unlock()
		return ErrEntryNotFound
	}
	entry.Tombstoned = true
	s.entries[scope][entryID] = entry
	s.mu.Unlock()

	if err := s.index.Remove(ctx, scope, entryID); err != nil {
		return fmt.Errorf("tombstone %s: %w", entryID, err)
	}
	return nil
}

func (s *LocalStore) LastExtractedTurn(_ context.Context, scope Scope) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarks[scope], nil
}

func (s *LocalStore) AdvanceWatermark(_ context.Context, scope Scope, from, to int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watermarks[scope] != from {
		return false, nil
	}
	s.watermarks[scope] = to
	return true, nil
}

func (s *LocalStore) Close() error {
	return s.index.Close()
}
