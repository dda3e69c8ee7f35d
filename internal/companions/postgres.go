package companions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the catalog with Postgres via pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect companions store: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS companions (
			id                TEXT PRIMARY KEY,
			owner_id          TEXT NOT NULL,
			owner_name        TEXT NOT NULL DEFAULT '',
			name              TEXT NOT NULL,
			short_description TEXT NOT NULL DEFAULT '',
			identity          TEXT NOT NULL DEFAULT '',
			interaction_style TEXT NOT NULL DEFAULT '',
			category_id       TEXT REFERENCES categories(id),
			avatar_url        TEXT NOT NULL DEFAULT '',
			humor             INT NOT NULL DEFAULT 3,
			empathy           INT NOT NULL DEFAULT 3,
			assertiveness     INT NOT NULL DEFAULT 3,
			sarcasm           INT NOT NULL DEFAULT 3,
			mod_hate          INT NOT NULL DEFAULT 3,
			mod_harassment    INT NOT NULL DEFAULT 3,
			mod_violence      INT NOT NULL DEFAULT 3,
			mod_self_harm     INT NOT NULL DEFAULT 3,
			mod_sexual        INT NOT NULL DEFAULT 3,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_companions_owner ON companions (owner_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init companions schema: %w", err)
		}
	}
	return nil
}

const companionColumns = `id, owner_id, owner_name, name, short_description, identity,
	interaction_style, COALESCE(category_id, ''), avatar_url,
	humor, empathy, assertiveness, sarcasm,
	mod_hate, mod_harassment, mod_violence, mod_self_harm, mod_sexual,
	created_at, updated_at`

func (s *PostgresStore) CreateCompanion(ctx context.Context, c Companion) (Companion, error) {
	if err := c.Validate(); err != nil {
		return Companion{}, err
	}
	c.ID = newID()
	c.Traits = c.Traits.Clamped()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO companions (
			id, owner_id, owner_name, name, short_description, identity,
			interaction_style, category_id, avatar_url,
			humor, empathy, assertiveness, sarcasm,
			mod_hate, mod_harassment, mod_violence, mod_self_harm, mod_sexual,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		c.ID, c.OwnerID, c.OwnerName, c.Name, c.ShortDescription, c.Identity,
		c.InteractionStyle, c.CategoryID, c.AvatarURL,
		c.Traits.Humor, c.Traits.Empathy, c.Traits.Assertiveness, c.Traits.Sarcasm,
		c.Moderation.Hate, c.Moderation.Harassment, c.Moderation.Violence,
		c.Moderation.SelfHarm, c.Moderation.Sexual,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return Companion{}, fmt.Errorf("insert companion: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCompanion(ctx context.Context, id string) (Companion, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+companionColumns+` FROM companions WHERE id = $1`, id)
	c, err := scanCompanion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Companion{}, ErrNotFound
	}
	if err != nil {
		return Companion{}, fmt.Errorf("get companion: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCompanions(ctx context.Context, ownerID string) ([]Companion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+companionColumns+`
		FROM companions
		WHERE $1 = '' OR owner_id = $1
		ORDER BY created_at ASC, id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list companions: %w", err)
	}
	defer rows.Close()

	var out []Companion
	for rows.Next() {
		c, err := scanCompanion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan companion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateCompanion(ctx context.Context, c Companion) (Companion, error) {
	if err := c.Validate(); err != nil {
		return Companion{}, err
	}
	c.Traits = c.Traits.Clamped()
	c.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		UPDATE companions SET
			owner_name = $2, name = $3, short_description = $4, identity = $5,
			interaction_style = $6, category_id = NULLIF($7,''), avatar_url = $8,
			humor = $9, empathy = $10, assertiveness = $11, sarcasm = $12,
			mod_hate = $13, mod_harassment = $14, mod_violence = $15,
			mod_self_harm = $16, mod_sexual = $17, updated_at = $18
		WHERE id = $1`,
		c.ID, c.OwnerName, c.Name, c.ShortDescription, c.Identity,
		c.InteractionStyle, c.CategoryID, c.AvatarURL,
		c.Traits.Humor, c.Traits.Empathy, c.Traits.Assertiveness, c.Traits.Sarcasm,
		c.Moderation.Hate, c.Moderation.Harassment, c.Moderation.Violence,
		c.Moderation.SelfHarm, c.Moderation.Sexual, c.UpdatedAt,
	)
	if err != nil {
		return Companion{}, fmt.Errorf("update companion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Companion{}, ErrNotFound
	}
	return s.GetCompanion(ctx, c.ID)
}

func (s *PostgresStore) DeleteCompanion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM companions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete companion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (Category, error) {
	cat := Category{ID: newID(), Name: name}
	_, err := s.pool.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)`, cat.ID, cat.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Category{}, ErrCategoryExists
		}
		return Category{}, fmt.Errorf("insert category: %w", err)
	}
	return cat, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() { s.pool.Close() }

func scanCompanion(row pgx.Row) (Companion, error) {
	var c Companion
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.OwnerName, &c.Name, &c.ShortDescription, &c.Identity,
		&c.InteractionStyle, &c.CategoryID, &c.AvatarURL,
		&c.Traits.Humor, &c.Traits.Empathy, &c.Traits.Assertiveness, &c.Traits.Sarcasm,
		&c.Moderation.Hate, &c.Moderation.Harassment, &c.Moderation.Violence,
		&c.Moderation.SelfHarm, &c.Moderation.Sexual,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}
