package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/brightlane/ingestflow/internal/domain"
)

// ControlStore implements the control-plane tenant directory: the single
// shared database every entrypoint consults to discover which tenants
// exist, which sources they've connected, and which per-tenant database
// their artifacts/config live in. Every other store in this package is
// instantiated against the DSN this one returns.
type ControlStore struct {
	*BaseStore
}

func NewControlStore(db *sql.DB) *ControlStore {
	return &ControlStore{BaseStore: NewBaseStore(db, "tenant")}
}

// TenantRecord is one row of the control-plane tenant directory.
type TenantRecord struct {
	domain.Tenant
	DatabaseDSN string
}

// ListTenants returns every active tenant and its database DSN, the
// basis for the worker and CDC manager's tenant-fleet bootstrap.
func (s *ControlStore) ListTenants(ctx context.Context) ([]TenantRecord, error) {
	const q = `SELECT id, name, database_dsn, enabled_sources, created_at FROM tenant`
	rows, err := s.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []TenantRecord
	for rows.Next() {
		var rec TenantRecord
		var enabled []string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.DatabaseDSN, pq.Array(&enabled), &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		rec.EnabledSource = toSourceSet(enabled)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListCDCEnabledTenants implements cdc.TenantLister: tenants whose
// enabled_sources array contains the given source.
func (s *ControlStore) ListCDCEnabledTenants(ctx context.Context, source domain.Source) ([]string, error) {
	const q = `SELECT id FROM tenant WHERE $1 = ANY(enabled_sources)`
	rows, err := s.QueryContext(ctx, q, string(source))
	if err != nil {
		return nil, fmt.Errorf("list cdc enabled tenants: %w", err)
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

// GetTenant fetches one tenant record by id.
func (s *ControlStore) GetTenant(ctx context.Context, tenantID string) (TenantRecord, error) {
	const q = `SELECT id, name, database_dsn, enabled_sources, created_at FROM tenant WHERE id = $1`
	var rec TenantRecord
	var enabled []string
	err := s.QueryRowContext(ctx, q, tenantID).Scan(&rec.ID, &rec.Name, &rec.DatabaseDSN, pq.Array(&enabled), &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return TenantRecord{}, NewNotFoundError("tenant", tenantID)
	}
	if err != nil {
		return TenantRecord{}, fmt.Errorf("get tenant %s: %w", tenantID, err)
	}
	rec.EnabledSource = toSourceSet(enabled)
	return rec, nil
}

func toSourceSet(sources []string) map[domain.Source]bool {
	set := make(map[domain.Source]bool, len(sources))
	for _, s := range sources {
		set[domain.Source(s)] = true
	}
	return set
}
