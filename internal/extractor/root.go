package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/queue"
	"github.com/brightlane/ingestflow/internal/syncstate"
)

// RootExtractor discovers a tenant's top-level containers and fans out
// one enumerate job per container (§4.5 step 1).
type RootExtractor struct {
	source      domain.Source
	entity      string
	containers  ContainerLister
	sync        *syncstate.Service
	queue       *queue.Adapter
	progress    ProgressStore
	childBatch  int
}

func NewRootExtractor(source domain.Source, entity string, containers ContainerLister, sync *syncstate.Service, q *queue.Adapter, progress ProgressStore) *RootExtractor {
	return &RootExtractor{source: source, entity: entity, containers: containers, sync: sync, queue: q, progress: progress, childBatch: DefaultChildJobBatchSize}
}

// ProcessFullBackfill discovers containers and enumerate-fans-out a
// fresh backfill. It sets SYNCED_UNTIL = now() before discovery so that
// concurrent mutations during the backfill are picked up by the next
// incremental run, per §4.5.
func (r *RootExtractor) ProcessFullBackfill(ctx context.Context, tenantID string) error {
	watermark := time.Now().UTC()
	if err := r.sync.SetSyncedUntil(ctx, r.source, r.entity, &watermark); err != nil {
		return fmt.Errorf("set pre-discovery watermark: %w", err)
	}

	containers, err := r.containers.ListContainers(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	backfillID := uuid.NewString()
	if err := r.progress.SetTotal(ctx, backfillID, tenantID, len(containers)); err != nil {
		return fmt.Errorf("init backfill progress: %w", err)
	}

	for _, c := range containers {
		cfg := domain.JobConfig{
			Kind:        domain.JobKindEnumerateContainer,
			TenantID:    tenantID,
			Source:      r.source,
			Entity:      r.entity,
			BackfillID:  backfillID,
			ContainerID: c.ID,
		}
		dedupID := fmt.Sprintf("enumerate_%s_%s_%s", tenantID, r.source, c.ID)
		if err := r.queue.SendBackfillIngest(ctx, cfg, dedupID); err != nil {
			return fmt.Errorf("enqueue enumerate job for container %s: %w", c.ID, err)
		}
	}
	return nil
}

// ProcessIncremental re-discovers containers without resetting the
// watermark, used for sources whose container set itself changes over
// time (new projects/boards appearing) between full backfills.
func (r *RootExtractor) ProcessIncremental(ctx context.Context, tenantID string) error {
	containers, err := r.containers.ListContainers(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}
	for _, c := range containers {
		cfg := domain.JobConfig{
			Kind:        domain.JobKindEnumerateContainer,
			TenantID:    tenantID,
			Source:      r.source,
			Entity:      r.entity,
			ContainerID: c.ID,
		}
		dedupID := fmt.Sprintf("enumerate_incr_%s_%s_%s_%d", tenantID, r.source, c.ID, time.Now().UTC().Unix())
		if err := r.queue.SendBackfillIngest(ctx, cfg, dedupID); err != nil {
			return fmt.Errorf("enqueue incremental enumerate job for container %s: %w", c.ID, err)
		}
	}
	return nil
}
