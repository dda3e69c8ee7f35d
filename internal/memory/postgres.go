package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists memory in PostgreSQL with pgvector. The
// embedding lives in-row with each entry, so referential integrity
// between index and entry holds by construction, and any process
// instance can serve any scope.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id BIGSERIAL PRIMARY KEY,
			companion_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_scope_id ON conversation_turns (companion_id, user_id, id);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_entries (
			id TEXT PRIMARY KEY,
			companion_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			source_turn_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			importance DOUBLE PRECISION NOT NULL DEFAULT 0,
			tombstoned BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_entries_scope ON memory_entries (companion_id, user_id);`,
		`CREATE TABLE IF NOT EXISTS extraction_watermarks (
			companion_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			last_turn_id BIGINT NOT NULL,
			PRIMARY KEY (companion_id, user_id)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (int64, error) {
	if turn.CompanionID == "" || turn.UserID == "" {
		return 0, fmt.Errorf("append turn: scope is required")
	}
	if turn.Role != RoleUser && turn.Role != RoleCompanion {
		return 0, fmt.Errorf("append turn: invalid role %q", turn.Role)
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversation_turns (companion_id, user_id, role, content, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		turn.CompanionID, turn.UserID, string(turn.Role), turn.Content, turn.PIIRedacted, turn.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append turn: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, scope Scope, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 12
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, companion_id, user_id, role, content, pii_redacted, created_at
		 FROM conversation_turns
		 WHERE companion_id=$1 AND user_id=$2
		 ORDER BY id DESC LIMIT $3`,
		scope.CompanionID, scope.UserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *PostgresStore) TurnsAfter(ctx context.Context, scope Scope, afterID int64) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, companion_id, user_id, role, content, pii_redacted, created_at
		 FROM conversation_turns
		 WHERE companion_id=$1 AND user_id=$2 AND id > $3
		 ORDER BY id ASC`,
		scope.CompanionID, scope.UserID, afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns after %d: %w", afterID, err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) Remember(ctx context.Context, scope Scope, content string, embedding []float32, importance float64, sourceTurnID int64) (string, error) {
	if len(embedding) != s.dim {
		return "", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memory_entries (id, companion_id, user_id, source_turn_id, content, embedding, importance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, scope.CompanionID, scope.UserID, sourceTurnID, content,
		vectorLiteral(embedding), importance, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SemanticRecall(ctx context.Context, scope Scope, query []float32, k int) ([]ScoredEntry, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, companion_id, user_id, source_turn_id, content, importance, created_at,
		        1 - (embedding <=> $3) AS score
		 FROM memory_entries
		 WHERE companion_id=$1 AND user_id=$2 AND NOT tombstoned
		 ORDER BY embedding <=> $3 ASC, id ASC
		 LIMIT $4`,
		scope.CompanionID, scope.UserID, vectorLiteral(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("semantic recall: %w", err)
	}
	defer rows.Close()

	out := make([]ScoredEntry, 0, k)
	for rows.Next() {
		var e ScoredEntry
		var score float64
		if err := rows.Scan(&e.ID, &e.CompanionID, &e.UserID, &e.SourceTurnID, &e.Content, &e.Importance, &e.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan recall row: %w", err)
		}
		e.Score = float32(score)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recall rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) TombstoneEntry(ctx context.Context, scope Scope, entryID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memory_entries SET tombstoned = TRUE
		 WHERE id=$1 AND companion_id=$2 AND user_id=$3`,
		entryID, scope.CompanionID, scope.UserID,
	)
	if err != nil {
		return fmt.Errorf("tombstone %s: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *PostgresStore) LastExtractedTurn(ctx context.Context, scope Scope) (int64, error) {
	var mark int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_turn_id FROM extraction_watermarks WHERE companion_id=$1 AND user_id=$2`,
		scope.CompanionID, scope.UserID,
	).Scan(&mark)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query watermark: %w", err)
	}
	return mark, nil
}

func (s *PostgresStore) AdvanceWatermark(ctx context.Context, scope Scope, from, to int64) (bool, error) {
	// Compare-and-set: the conditional UPDATE makes concurrent
	// extractors at the same boundary race to exactly one winner.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_watermarks (companion_id, user_id, last_turn_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (companion_id, user_id)
		 DO UPDATE SET last_turn_id = EXCLUDED.last_turn_id
		 WHERE extraction_watermarks.last_turn_id = $4`,
		scope.CompanionID, scope.UserID, to, from,
	)
	if err != nil {
		return false, fmt.Errorf("advance watermark: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanTurns(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.CompanionID, &t.UserID, &role, &t.Content, &t.PIIRedacted, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

// vectorLiteral renders an embedding in pgvector's input format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
