package cdc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/queue"
)

// Forwarder sends decoded CDC events to the ingest queue's webhook lane,
// implementing the message-group/dedup-id convention from spec §4.4.
type Forwarder struct {
	queue *queue.Adapter
}

func NewForwarder(q *queue.Adapter) *Forwarder {
	return &Forwarder{queue: q}
}

// cdcEventBatch is the JSON body placed on the webhook queue; the
// process extractor (§4.5) unmarshals it to route INSERT/UPDATE/UNDELETE
// through an upsert and DELETE through the pruner.
type cdcEventBatch struct {
	TenantID string            `json:"tenant_id"`
	Source   domain.Source     `json:"source"`
	Events   []domain.CDCEvent `json:"events"`
}

// Forward sends one logical event per record id in the decoded batch, as
// spec §4.4 requires ("emit one logical CDC event per record id").
func (f *Forwarder) Forward(ctx context.Context, tenantID string, source domain.Source, events []domain.CDCEvent) error {
	for _, event := range events {
		batch := cdcEventBatch{TenantID: tenantID, Source: source, Events: []domain.CDCEvent{event}}
		body, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("marshal cdc event batch: %w", err)
		}

		groupID := domain.LaneKey(tenantID, event.RecordID)
		dedupID := fmt.Sprintf("sf_cdc_%s_%s_%s_%d", tenantID, event.ObjectType, event.RecordID, event.CommitNumber)

		if err := f.queue.SendIngestWebhook(ctx, body, groupID, dedupID); err != nil {
			return fmt.Errorf("send cdc event for %s/%s: %w", event.ObjectType, event.RecordID, err)
		}
	}
	return nil
}
