// Package memory owns a companion's durable knowledge of a user: the
// append-only turn log, the derived long-term entries, and the vector
// index over entry embeddings. No process-local state is authoritative;
// any instance can serve any (companion, user) scope.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/vecindex"
)

// Scope identifies the (companion, user) pair that partitions all
// memory state.
type Scope = vecindex.Scope

type Role string

const (
	RoleUser      Role = "user"
	RoleCompanion Role = "companion"
)

// Turn is one message in a conversation. Immutable once written; turn
// ids are monotonically increasing per scope and double as the
// extraction watermark.
type Turn struct {
	ID          int64     `json:"id"`
	CompanionID string    `json:"companion_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entry is a derived, embedding-indexed long-term fact. Never mutated;
// superseded entries are tombstoned, not rewritten.
type Entry struct {
	ID           string    `json:"id"`
	CompanionID  string    `json:"companion_id"`
	UserID       string    `json:"user_id"`
	SourceTurnID int64     `json:"source_turn_id"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"-"`
	Importance   float64   `json:"importance"`
	Tombstoned   bool      `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ScoredEntry pairs an entry with its similarity to a recall query.
type ScoredEntry struct {
	Entry
	Score float32 `json:"score"`
}

var (
	// ErrIndexInconsistency means a vector index hit resolved to no
	// stored entry. The store is the index's only writer, so this is an
	// internal invariant violation, not a normal miss.
	ErrIndexInconsistency = errors.New("vector index references a missing memory entry")

	ErrDimensionMismatch = vecindex.ErrDimensionMismatch

	ErrEntryNotFound = errors.New("memory entry not found")
)

// Store persists conversation turns and long-term memory entries.
// Implementations must make AppendTurn the atomic unit of the write
// path: concurrent turns interleave in id order and extraction failures
// never roll a turn back.
type Store interface {
	// AppendTurn durably writes one turn and returns its id.
	AppendTurn(ctx context.Context, turn Turn) (int64, error)

	// RecentTurns returns the last limit turns for scope, oldest first.
	RecentTurns(ctx context.Context, scope Scope, limit int) ([]Turn, error)

	// TurnsAfter returns all turns with id > afterID for scope, in id order.
	TurnsAfter(ctx context.Context, scope Scope, afterID int64) ([]Turn, error)

	// SemanticRecall returns up to k non-tombstoned entries ranked by
	// similarity to the query embedding, ties broken by entry id.
	SemanticRecall(ctx context.Context, scope Scope, query []float32, k int) ([]ScoredEntry, error)

	// Remember writes one long-term entry and indexes its embedding.
	Remember(ctx context.Context, scope Scope, content string, embedding []float32, importance float64, sourceTurnID int64) (string, error)

	// TombstoneEntry supersedes an entry: it stops appearing in recall
	// but its record is kept.
	TombstoneEntry(ctx context.Context, scope Scope, entryID string) error

	// LastExtractedTurn returns the extraction watermark for scope
	// (zero when nothing has been extracted).
	LastExtractedTurn(ctx context.Context, scope Scope) (int64, error)

	// AdvanceWatermark moves the extraction watermark from `from` to
	// `to` iff the current value still equals `from`. Returns false
	// when another extractor won the race.
	AdvanceWatermark(ctx context.Context, scope Scope, from, to int64) (bool, error)

	Close() error
}
