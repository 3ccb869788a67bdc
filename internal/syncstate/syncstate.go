// Package syncstate implements the thin typed wrapper over the per-tenant
// config k/v table described in spec §4.7: SYNCED_UNTIL watermarks,
// BACKFILL_COMPLETE flags, and opaque provider cursors.
package syncstate

import (
	"context"
	"fmt"
	"time"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/store"
)

// Service wraps a tenant's ConfigStore with typed accessors for the
// well-known sync-state keys.
type Service struct {
	config *store.ConfigStore
}

func New(config *store.ConfigStore) *Service {
	return &Service{config: config}
}

// SyncedUntil returns the incremental watermark for (source, entity), or
// nil if it has never been set.
func (s *Service) SyncedUntil(ctx context.Context, source domain.Source, entity string) (*time.Time, error) {
	key := domain.SyncStateKey(source, entity, domain.KeySuffixSyncedUntil)
	raw, ok, err := s.config.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return &t, nil
}

// SetSyncedUntil advances the watermark. A nil value clears the key,
// matching the setter-with-nil-means-delete invariant (§4.7).
func (s *Service) SetSyncedUntil(ctx context.Context, source domain.Source, entity string, t *time.Time) error {
	key := domain.SyncStateKey(source, entity, domain.KeySuffixSyncedUntil)
	if t == nil {
		return s.config.Clear(ctx, key)
	}
	return s.config.Set(ctx, key, t.UTC().Format(time.RFC3339Nano))
}

// BackfillComplete reports whether the one-shot backfill flag is set.
func (s *Service) BackfillComplete(ctx context.Context, source domain.Source, entity string) (bool, error) {
	key := domain.SyncStateKey(source, entity, domain.KeySuffixBackfillComplete)
	raw, ok, err := s.config.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return raw == "true", nil
}

// SetBackfillComplete sets or clears the one-shot flag.
func (s *Service) SetBackfillComplete(ctx context.Context, source domain.Source, entity string, complete bool) error {
	key := domain.SyncStateKey(source, entity, domain.KeySuffixBackfillComplete)
	return s.config.Set(ctx, key, boolString(complete))
}

// SyncedCommit returns the opaque provider cursor (commit SHA, pagination
// token) for (source, entity), if set.
func (s *Service) SyncedCommit(ctx context.Context, source domain.Source, entity string) (string, bool, error) {
	key := domain.SyncStateKey(source, entity, domain.KeySuffixSyncedCommit)
	return s.config.Get(ctx, key)
}

// SetSyncedCommit stores the opaque provider cursor as-is.
func (s *Service) SetSyncedCommit(ctx context.Context, source domain.Source, entity, commit string) error {
	key := domain.SyncStateKey(source, entity, domain.KeySuffixSyncedCommit)
	if commit == "" {
		return s.config.Clear(ctx, key)
	}
	return s.config.Set(ctx, key, commit)
}

// RequireBackfillBeforeIncremental enforces spec §3's invariant: an
// incremental extractor must refuse to run when BACKFILL_COMPLETE is
// absent and no prior SYNCED_UNTIL exists, so a scheduled incremental run
// never silently skips history that a backfill hasn't covered yet.
func (s *Service) RequireBackfillBeforeIncremental(ctx context.Context, source domain.Source, entity string) error {
	complete, err := s.BackfillComplete(ctx, source, entity)
	if err != nil {
		return err
	}
	if complete {
		return nil
	}
	synced, err := s.SyncedUntil(ctx, source, entity)
	if err != nil {
		return err
	}
	if synced != nil {
		return nil
	}
	return fmt.Errorf("incremental refused: no BACKFILL_COMPLETE and no SYNCED_UNTIL for %s/%s", source, entity)
}

// AdvanceSyncedUntil advances the watermark only if newWatermark is later
// than the stored value, a small overlap (per spec §4.5: "minus a small
// 1s overlap to avoid boundary misses") already subtracted by the caller.
// Cursor monotonicity (§8) is the caller's responsibility: call this only
// after every item in the batch succeeded.
func (s *Service) AdvanceSyncedUntil(ctx context.Context, source domain.Source, entity string, newWatermark time.Time) error {
	current, err := s.SyncedUntil(ctx, source, entity)
	if err != nil {
		return err
	}
	if current != nil && !newWatermark.After(*current) {
		return nil
	}
	return s.SetSyncedUntil(ctx, source, entity, &newWatermark)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
