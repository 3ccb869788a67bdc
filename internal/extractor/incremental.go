package extractor

import (
	"fmt"
	"time"

	"context"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/syncstate"
)

// overlapWindow subtracts a small buffer from the observed max
// updated_at before advancing the cursor, to avoid boundary misses on
// vendors with coarse timestamp precision (§4.5).
const overlapWindow = time.Second

// IncrementalExtractor runs the updated-after-cursor variant for
// sources that support it directly (cmd/worker registers it for
// Salesforce object-sync, Linear, Pipedrive, PostHog, Pylon and
// Fireflies), skipping enumeration entirely (§4.5).
type IncrementalExtractor struct {
	source    domain.Source
	entity    string
	container string // vendor container/object-type this instance lists, e.g. Salesforce's sobject name; empty for sources with no such concept
	lister    UpdatedSinceLister
	sync      *syncstate.Service
	store     ArtifactStore
	index     IndexingCallback
	privacy   VisibilityChecker
}

func NewIncrementalExtractor(source domain.Source, entity, container string, lister UpdatedSinceLister, sync *syncstate.Service, store ArtifactStore, index IndexingCallback, privacy VisibilityChecker) *IncrementalExtractor {
	return &IncrementalExtractor{source: source, entity: entity, container: container, lister: lister, sync: sync, store: store, index: index, privacy: privacy}
}

// Process refuses to run unless RequireBackfillBeforeIncremental passes
// and a SYNCED_UNTIL cursor exists (BACKFILL_COMPLETE alone is not
// enough), rather than falling back to a fixed lookback window, because
// that would silently skip history (§4.5).
func (e *IncrementalExtractor) Process(ctx context.Context, tenantID string) error {
	if err := e.sync.RequireBackfillBeforeIncremental(ctx, e.source, e.entity); err != nil {
		return err
	}

	since, err := e.sync.SyncedUntil(ctx, e.source, e.entity)
	if err != nil {
		return fmt.Errorf("read synced-until: %w", err)
	}
	if since == nil {
		return fmt.Errorf("incremental refused: no SYNCED_UNTIL for %s/%s", e.source, e.entity)
	}

	items, maxUpdatedAt, err := e.lister.ListUpdatedSince(ctx, e.container, *since)
	if err != nil {
		return fmt.Errorf("list updated since %s: %w", since, err)
	}
	if len(items) == 0 {
		// A lister that reports progress past since on an empty result
		// (Fireflies' fixed windows) still moves the cursor forward.
		if maxUpdatedAt.After(*since) {
			return e.sync.AdvanceSyncedUntil(ctx, e.source, e.entity, maxUpdatedAt)
		}
		return nil
	}

	var visible []domain.Artifact
	var missingVisibility int
	var toDeindex []string
	for _, a := range items {
		if e.privacy != nil && e.privacy.IsPrivate(a) {
			toDeindex = append(toDeindex, a.EntityID)
			missingVisibility++
			continue
		}
		visible = append(visible, a)
	}

	upsertErr := e.upsertInBatches(ctx, visible)
	deindexErr := e.deindexIfSafe(ctx, toDeindex, len(items), missingVisibility)

	// Cursor only advances when every item in the batch succeeded
	// (§4.5 "If any item fails to process, do not advance the cursor"),
	// giving eventual delivery at the cost of occasional rework.
	if upsertErr != nil || deindexErr != nil {
		if upsertErr != nil {
			return upsertErr
		}
		return deindexErr
	}

	if err := e.triggerIndexing(ctx, tenantID, visible); err != nil {
		return err
	}

	watermark := maxUpdatedAt.Add(-overlapWindow)
	return e.sync.AdvanceSyncedUntil(ctx, e.source, e.entity, watermark)
}

func (e *IncrementalExtractor) upsertInBatches(ctx context.Context, artifacts []domain.Artifact) error {
	for _, batch := range artifactBatches(artifacts, artifactUpsertBatchSize) {
		if err := e.store.UpsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("upsert artifact batch: %w", err)
		}
	}
	return nil
}

func (e *IncrementalExtractor) deindexIfSafe(ctx context.Context, ids []string, pageSize, missingVisibility int) error {
	if len(ids) == 0 {
		return nil
	}
	if pageSize == 0 || float64(missingVisibility)/float64(pageSize) > missingVisibilityGuardrail {
		return nil
	}
	for _, id := range ids {
		if err := e.store.Delete(ctx, e.entity, id); err != nil {
			return fmt.Errorf("de-index %s after privacy flip: %w", id, err)
		}
	}
	return nil
}

func (e *IncrementalExtractor) triggerIndexing(ctx context.Context, tenantID string, artifacts []domain.Artifact) error {
	ids := make([]string, len(artifacts))
	for i, a := range artifacts {
		ids[i] = a.EntityID
	}
	for _, batch := range chunk(ids, IndexBatchSize) {
		if err := e.index(ctx, batch, e.source, tenantID, "", false); err != nil {
			return fmt.Errorf("trigger indexing callback: %w", err)
		}
	}
	return nil
}
