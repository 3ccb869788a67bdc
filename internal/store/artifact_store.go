package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightlane/ingestflow/internal/domain"
)

// ArtifactStore persists the ingest_artifact table (schema in spec §6):
// upsert-by-(entity, entity_id), batch upsert, lookup, and delete, backing
// both the extractor pipeline (§4.5) and the pruner (§4.6).
type ArtifactStore struct {
	*BaseStore
}

// NewArtifactStore wraps a per-tenant database pool.
func NewArtifactStore(db *sql.DB) *ArtifactStore {
	return &ArtifactStore{BaseStore: NewBaseStore(db, "ingest_artifact")}
}

// Upsert inserts or replaces an artifact keyed by (entity, entity_id),
// giving the extractor pipeline's idempotence property (§8): running
// twice with the same input produces the same final row.
func (s *ArtifactStore) Upsert(ctx context.Context, a domain.Artifact) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO ingest_artifact (id, entity, entity_id, content, metadata, ingest_job_id, source_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity, entity_id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			ingest_job_id = EXCLUDED.ingest_job_id,
			source_updated_at = EXCLUDED.source_updated_at`
	_, err := s.ExecContext(ctx, q, a.ID, a.Entity, a.EntityID, a.Content, a.Metadata, a.IngestJobID, a.SourceUpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert artifact %s/%s: %w", a.Entity, a.EntityID, err)
	}
	return nil
}

// UpsertBatch upserts artifacts inside a single transaction, the shape
// the process extractor uses for its batches of ~50 (§4.5).
func (s *ArtifactStore) UpsertBatch(ctx context.Context, artifacts []domain.Artifact) error {
	return s.WithTx(ctx, func(txCtx context.Context) error {
		for _, a := range artifacts {
			if err := s.Upsert(txCtx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get fetches a single artifact by entity and entity_id.
func (s *ArtifactStore) Get(ctx context.Context, entity, entityID string) (*domain.Artifact, error) {
	const q = `SELECT id, entity, entity_id, content, metadata, ingest_job_id, source_updated_at
	           FROM ingest_artifact WHERE entity = $1 AND entity_id = $2`
	row := s.QueryRowContext(ctx, q, entity, entityID)
	var a domain.Artifact
	var content, metadata []byte
	if err := row.Scan(&a.ID, &a.Entity, &a.EntityID, &content, &metadata, &a.IngestJobID, &a.SourceUpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, NewNotFoundError(entity, entityID)
		}
		return nil, fmt.Errorf("get artifact %s/%s: %w", entity, entityID, err)
	}
	a.Content = json.RawMessage(content)
	a.Metadata = json.RawMessage(metadata)
	return &a, nil
}

// Delete removes the artifact row, the first step of the pruner's
// template method (§4.6).
func (s *ArtifactStore) Delete(ctx context.Context, entity, entityID string) error {
	const q = `DELETE FROM ingest_artifact WHERE entity = $1 AND entity_id = $2`
	result, err := s.ExecContext(ctx, q, entity, entityID)
	if err != nil {
		return fmt.Errorf("delete artifact %s/%s: %w", entity, entityID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return NewNotFoundError(entity, entityID)
	}
	return nil
}

// ListEntityIDsByEntity returns every entity_id currently stored for the
// given entity kind, the basis for the pruner's stale-reconciliation scan
// (§4.6): it loads all indexed doc-ids before diffing against the source.
func (s *ArtifactStore) ListEntityIDsByEntity(ctx context.Context, entity string) ([]string, error) {
	const q = `SELECT entity_id FROM ingest_artifact WHERE entity = $1`
	rows, err := s.QueryContext(ctx, q, entity)
	if err != nil {
		return nil, fmt.Errorf("list entity ids for %s: %w", entity, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByEntity returns how many artifacts exist for an entity kind.
func (s *ArtifactStore) CountByEntity(ctx context.Context, entity string) (int, error) {
	const q = `SELECT COUNT(*) FROM ingest_artifact WHERE entity = $1`
	var count int
	err := s.QueryRowContext(ctx, q, entity).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by entity %s: %w", entity, err)
	}
	return count, nil
}

// ArtifactAge returns how long it has been since the artifact's
// source_updated_at, useful for freshness metrics.
func ArtifactAge(a domain.Artifact, now time.Time) time.Duration {
	return now.Sub(a.SourceUpdatedAt)
}
