package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brightlane/ingestflow/internal/domain"
)

// ProgressStore persists backfill fan-out completion accounting (§4.5):
// the root job writes the total batch count, each child process job
// increments attempted and done.
type ProgressStore struct {
	*BaseStore
}

func NewProgressStore(db *sql.DB) *ProgressStore {
	return &ProgressStore{BaseStore: NewBaseStore(db, "backfill_progress")}
}

// SetTotal records the number of batches a root job fanned out, called
// once per backfill before any enumerate/process job can have run.
func (s *ProgressStore) SetTotal(ctx context.Context, backfillID, tenantID string, total int) error {
	query := `
		INSERT INTO backfill_progress (backfill_id, tenant_id, total_ingest_jobs, attempted, done)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (backfill_id) DO UPDATE SET total_ingest_jobs = EXCLUDED.total_ingest_jobs`
	_, err := s.ExecContext(ctx, query, backfillID, tenantID, total)
	if err != nil {
		return fmt.Errorf("set backfill total: %w", err)
	}
	return nil
}

func (s *ProgressStore) IncrementAttempted(ctx context.Context, backfillID string, n int) error {
	_, err := s.ExecContext(ctx, `UPDATE backfill_progress SET attempted = attempted + $2 WHERE backfill_id = $1`, backfillID, n)
	if err != nil {
		return fmt.Errorf("increment attempted: %w", err)
	}
	return nil
}

func (s *ProgressStore) IncrementDone(ctx context.Context, backfillID string, n int) error {
	_, err := s.ExecContext(ctx, `UPDATE backfill_progress SET done = done + $2 WHERE backfill_id = $1`, backfillID, n)
	if err != nil {
		return fmt.Errorf("increment done: %w", err)
	}
	return nil
}

// Get returns the current progress snapshot, used by the control plane
// to expose completion percentage to operators (§4.5).
func (s *ProgressStore) Get(ctx context.Context, backfillID string) (domain.BackfillProgress, error) {
	var p domain.BackfillProgress
	row := s.QueryRowContext(ctx, `SELECT backfill_id, tenant_id, total_ingest_jobs, attempted, done FROM backfill_progress WHERE backfill_id = $1`, backfillID)
	if err := row.Scan(&p.BackfillID, &p.TenantID, &p.TotalIngestJobs, &p.Attempted, &p.Done); err != nil {
		if err == sql.ErrNoRows {
			return domain.BackfillProgress{}, ErrNotFound
		}
		return domain.BackfillProgress{}, fmt.Errorf("get backfill progress: %w", err)
	}
	return p, nil
}
