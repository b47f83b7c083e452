// Package postgres implements the persistent long-term archive on PostgreSQL
// with the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/meridian-labs/tether/internal/storage"
	"github.com/meridian-labs/tether/pkg/types"
)

var _ storage.ArchiveStore = (*Archive)(nil)

// Archive stores long-term memory points in an insert-only table with an
// ivfflat cosine index over the intent vector.
type Archive struct {
	db  *sql.DB
	dim int
}

// NewArchive connects to dsn and bootstraps the archive schema for the given
// embedding dimension. The dimension is fixed per deployment; vectors of any
// other length are rejected before they reach the database.
func NewArchive(dsn string, dim int) (*Archive, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimension must be positive, got %d", dim)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	archive := &Archive{db: db, dim: dim}
	if err := archive.bootstrap(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return archive, nil
}

// bootstrap creates the extension, table, and index if they do not exist.
func (a *Archive) bootstrap() error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS archive_points (
				id             BIGSERIAL PRIMARY KEY,
				pseudo_user_id TEXT NOT NULL,
				summary        TEXT NOT NULL,
				intent_vec     vector(%d) NOT NULL,
				tone_vec       vector(%d),
				product_vec    vector(%d),
				entities       JSONB,
				last_seen      TIMESTAMPTZ NOT NULL,
				UNIQUE (pseudo_user_id, last_seen)
			)`, a.dim, a.dim, a.dim),
		`CREATE INDEX IF NOT EXISTS idx_archive_intent_cosine
			ON archive_points USING ivfflat (intent_vec vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_pseudo_user
			ON archive_points (pseudo_user_id, last_seen DESC)`,
	}
	for _, stmt := range statements {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("postgres: bootstrap archive schema: %w", err)
		}
	}
	return nil
}

// toVector converts and validates a float32 slice for pgvector.
func (a *Archive) toVector(vec []float32) (pgvector.Vector, error) {
	if len(vec) != a.dim {
		return pgvector.Vector{}, &storage.DimensionError{Want: a.dim, Got: len(vec)}
	}
	return pgvector.NewVector(vec), nil
}

// Insert stores a new memory point. The unique (pseudo_user_id, last_seen)
// constraint plus ON CONFLICT DO NOTHING makes re-inserts a no-op, which is
// the archive's insert-only contract.
func (a *Archive) Insert(ctx context.Context, point *types.LongTermMemoryPoint) error {
	if point == nil || point.PseudoUserID == "" {
		return fmt.Errorf("postgres: archive point requires a pseudo user id")
	}

	intent, err := a.toVector(point.Intent)
	if err != nil {
		return err
	}
	tone, err := a.toVector(point.Tone)
	if err != nil {
		return err
	}
	product, err := a.toVector(point.Product)
	if err != nil {
		return err
	}

	entities, err := json.Marshal(point.Entities)
	if err != nil {
		return fmt.Errorf("postgres: marshal entities: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO archive_points (pseudo_user_id, summary, intent_vec, tone_vec, product_vec, entities, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pseudo_user_id, last_seen) DO NOTHING
	`, point.PseudoUserID, point.Summary, intent, tone, product, entities, point.LastSeen)
	if err != nil {
		return fmt.Errorf("postgres: insert archive point for %s: %w", point.PseudoUserID, err)
	}
	return nil
}

// Query returns up to topK points nearest to vector by cosine distance.
func (a *Archive) Query(ctx context.Context, vector []float32, topK int) ([]types.LongTermMemoryPoint, error) {
	if topK <= 0 {
		topK = 10
	}
	query, err := a.toVector(vector)
	if err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT pseudo_user_id, summary, intent_vec, tone_vec, product_vec, entities, last_seen
		FROM archive_points
		ORDER BY intent_vec <=> $1
		LIMIT $2
	`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: query archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []types.LongTermMemoryPoint
	for rows.Next() {
		var (
			point                 types.LongTermMemoryPoint
			intent, tone, product pgvector.Vector
			entitiesJSON          []byte
		)
		if err := rows.Scan(&point.PseudoUserID, &point.Summary, &intent, &tone,
			&product, &entitiesJSON, &point.LastSeen); err != nil {
			return nil, fmt.Errorf("postgres: scan archive point: %w", err)
		}
		point.Intent = intent.Slice()
		point.Tone = tone.Slice()
		point.Product = product.Slice()
		if len(entitiesJSON) > 0 {
			if err := json.Unmarshal(entitiesJSON, &point.Entities); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal entities: %w", err)
			}
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: archive rows: %w", err)
	}
	return points, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}
