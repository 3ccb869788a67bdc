package extractor

import (
	"context"
	"fmt"

	"github.com/brightlane/ingestflow/internal/domain"
)

// ProcessExtractor fetches each entity in a batch fully, converts to an
// Artifact, stores in upsert batches, and triggers the downstream
// indexing callback in IndexBatchSize chunks (§4.5 step 3).
type ProcessExtractor struct {
	source   domain.Source
	entity   string
	fetch    EntityFetcher
	store    ArtifactStore
	progress ProgressStore
	index    IndexingCallback
	privacy  VisibilityChecker // nil for sources with no isPrivate field
}

func NewProcessExtractor(source domain.Source, entity string, fetch EntityFetcher, store ArtifactStore, progress ProgressStore, index IndexingCallback, privacy VisibilityChecker) *ProcessExtractor {
	return &ProcessExtractor{source: source, entity: entity, fetch: fetch, store: store, progress: progress, index: index, privacy: privacy}
}

// missingVisibilityGuardrail aborts de-indexing when the "missing
// visibility" rate on a page exceeds this fraction, on the assumption a
// misbehaving API should not cause mass pruning (§4.5).
const missingVisibilityGuardrail = 0.20

// Process fetches every entity id in the batch, splits into
// visible/private sets under the fail-closed rule, upserts the visible
// ones, de-indexes the private ones (guarded), and invokes the indexing
// callback for the visible set.
func (p *ProcessExtractor) Process(ctx context.Context, tenantID, containerID, backfillID string, entityIDs []string, suppressNotification bool) error {
	if backfillID != "" {
		if err := p.progress.IncrementAttempted(ctx, backfillID, len(entityIDs)); err != nil {
			return fmt.Errorf("record attempted count: %w", err)
		}
	}

	var visible []domain.Artifact
	var missingVisibility int
	var toDeindex []string

	for _, id := range entityIDs {
		artifact, err := p.fetch.FetchEntity(ctx, containerID, id)
		if err != nil {
			return fmt.Errorf("fetch entity %s: %w", id, err)
		}
		if p.privacy != nil && p.privacy.IsPrivate(artifact) {
			toDeindex = append(toDeindex, id)
			missingVisibility++
			continue
		}
		visible = append(visible, artifact)
	}

	if err := p.upsertInBatches(ctx, visible); err != nil {
		return err
	}

	if len(toDeindex) > 0 {
		ratio := float64(missingVisibility) / float64(len(entityIDs))
		if ratio <= missingVisibilityGuardrail {
			for _, id := range toDeindex {
				if err := p.store.Delete(ctx, p.entity, id); err != nil {
					return fmt.Errorf("de-index %s after privacy flip: %w", id, err)
				}
			}
		}
	}

	if err := p.triggerIndexing(ctx, tenantID, backfillID, visible, suppressNotification); err != nil {
		return err
	}

	if backfillID != "" {
		if err := p.progress.IncrementDone(ctx, backfillID, len(entityIDs)); err != nil {
			return fmt.Errorf("record done count: %w", err)
		}
	}
	return nil
}

// ProcessCDCEvents routes DELETE operations to the pruner (via the
// caller-supplied deleter, since the pruner's doc_id_resolver is
// connector-specific) and INSERT/UPDATE/UNDELETE through a fresh fetch
// and upsert, because the CDC payload is often partial (§4.5).
func (p *ProcessExtractor) ProcessCDCEvents(ctx context.Context, tenantID, containerID string, events []domain.CDCEvent, deleteEntity func(ctx context.Context, entityID string) error) error {
	var toUpsert []string
	for _, ev := range events {
		if ev.Operation == domain.CDCDelete {
			if deleteEntity == nil {
				continue
			}
			if err := deleteEntity(ctx, ev.RecordID); err != nil {
				return fmt.Errorf("delete cdc entity %s: %w", ev.RecordID, err)
			}
			continue
		}
		toUpsert = append(toUpsert, ev.RecordID)
	}
	if len(toUpsert) == 0 {
		return nil
	}
	return p.Process(ctx, tenantID, containerID, "", toUpsert, true)
}

func (p *ProcessExtractor) upsertInBatches(ctx context.Context, artifacts []domain.Artifact) error {
	for _, batch := range artifactBatches(artifacts, artifactUpsertBatchSize) {
		if err := p.store.UpsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("upsert artifact batch: %w", err)
		}
	}
	return nil
}

func (p *ProcessExtractor) triggerIndexing(ctx context.Context, tenantID, backfillID string, artifacts []domain.Artifact, suppressNotification bool) error {
	ids := make([]string, len(artifacts))
	for i, a := range artifacts {
		ids[i] = a.EntityID
	}
	for _, batch := range chunk(ids, IndexBatchSize) {
		if err := p.index(ctx, batch, p.source, tenantID, backfillID, suppressNotification); err != nil {
			return fmt.Errorf("trigger indexing callback: %w", err)
		}
	}
	return nil
}

func artifactBatches(artifacts []domain.Artifact, size int) [][]domain.Artifact {
	var out [][]domain.Artifact
	for i := 0; i < len(artifacts); i += size {
		end := i + size
		if end > len(artifacts) {
			end = len(artifacts)
		}
		out = append(out, artifacts[i:end])
	}
	return out
}
