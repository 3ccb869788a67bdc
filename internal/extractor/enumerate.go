package extractor

import (
	"context"
	"fmt"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/queue"
	"github.com/brightlane/ingestflow/internal/syncstate"
)

// EnumerateExtractor lists every entity in one container, splits the
// result into CHILD_JOB_BATCH_SIZE batches, and fans out one process
// job per batch (§4.5 step 2).
type EnumerateExtractor struct {
	source     domain.Source
	entity     string
	entities   EntityLister
	sync       *syncstate.Service
	queue      *queue.Adapter
	progress   ProgressStore
	batchSize  int
}

func NewEnumerateExtractor(source domain.Source, entity string, entities EntityLister, sync *syncstate.Service, q *queue.Adapter, progress ProgressStore) *EnumerateExtractor {
	return &EnumerateExtractor{source: source, entity: entity, entities: entities, sync: sync, queue: q, progress: progress, batchSize: DefaultChildJobBatchSize}
}

// Process pages through every entity in containerID, batches ids, and
// emits one process-batch job per batch. For a full backfill it also
// persists the container's resume cursor so the incremental extractor
// knows where to continue from.
func (e *EnumerateExtractor) Process(ctx context.Context, tenantID, containerID, backfillID string) error {
	var allIDs []string
	cursor := ""
	var page EntityPage

	for {
		var err error
		page, err = e.entities.ListEntities(ctx, containerID, cursor)
		if err != nil {
			return fmt.Errorf("list entities for container %s: %w", containerID, err)
		}
		allIDs = append(allIDs, page.EntityIDs...)
		if page.Done {
			break
		}
		cursor = page.NextCursor
	}

	batches := chunk(allIDs, e.batchSize)

	if backfillID != "" {
		if err := e.progress.IncrementAttempted(ctx, backfillID, 0); err != nil {
			return fmt.Errorf("touch backfill progress: %w", err)
		}
	}

	for i, batch := range batches {
		cfg := domain.JobConfig{
			Kind:        domain.JobKindProcessBatch,
			TenantID:    tenantID,
			Source:      e.source,
			Entity:      e.entity,
			BackfillID:  backfillID,
			ContainerID: containerID,
			EntityIDs:   batch,
		}
		dedupID := fmt.Sprintf("process_%s_%s_%s_%d", tenantID, e.source, containerID, i)
		if err := e.queue.SendBackfillIngest(ctx, cfg, dedupID); err != nil {
			return fmt.Errorf("enqueue process batch %d for container %s: %w", i, containerID, err)
		}
	}

	if backfillID != "" {
		if page.LatestCommit != "" {
			if err := e.sync.SetSyncedCommit(ctx, e.source, e.entity, page.LatestCommit); err != nil {
				return fmt.Errorf("persist resume commit: %w", err)
			}
		}
		if !page.LatestUpdatedAt.IsZero() {
			if err := e.sync.AdvanceSyncedUntil(ctx, e.source, e.entity, page.LatestUpdatedAt); err != nil {
				return fmt.Errorf("persist resume watermark: %w", err)
			}
		}
	}
	return nil
}
