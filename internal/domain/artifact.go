package domain

import (
	"encoding/json"
	"time"
)

// Artifact is the immutable, normalized snapshot of a source record,
// uniquely identified by (tenant, entity_kind, entity_id). Created by
// extractors (upserted by entity_id), mutated only by replacement, and
// deleted by the pruner or a CDC DELETE event.
type Artifact struct {
	ID               string          `db:"id" json:"id"`
	TenantID         string          `db:"tenant_id" json:"tenant_id"`
	Entity           string          `db:"entity" json:"entity"` // e.g. "teamwork_task"
	EntityID         string          `db:"entity_id" json:"entity_id"`
	Content           json.RawMessage `db:"content" json:"content"`
	Metadata          json.RawMessage `db:"metadata" json:"metadata"`
	IngestJobID       string          `db:"ingest_job_id" json:"ingest_job_id"`
	SourceUpdatedAt   time.Time       `db:"source_updated_at" json:"source_updated_at"`
}

// CDCOperation enumerates the change types a CDC event can carry.
type CDCOperation string

const (
	CDCInsert   CDCOperation = "INSERT"
	CDCUpdate   CDCOperation = "UPDATE"
	CDCDelete   CDCOperation = "DELETE"
	CDCUndelete CDCOperation = "UNDELETE"
)

// CDCEvent is a single logical change emitted by a CDC listener. Lifecycle:
// emitted by the listener, enqueued as a webhook message, consumed by a CDC
// extractor that upserts or deletes an artifact.
type CDCEvent struct {
	RecordID       string          `json:"record_id"`
	ObjectType     string          `json:"object_type"`
	Operation      CDCOperation    `json:"operation_type"`
	ChangeHeader   json.RawMessage `json:"change_header,omitempty"`
	DecodedPayload json.RawMessage `json:"decoded_payload,omitempty"`
	CommitNumber   int64           `json:"commit_number"`
}

// LaneKey derives the FIFO lane (message_group_id) a CDC event batch is
// placed on so that updates for the same (tenant, object_type, record_id)
// are always processed in queue order.
func LaneKey(tenantID, recordID string) string {
	return tenantID + ":" + recordID
}
