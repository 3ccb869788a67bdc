package domain

import "encoding/json"

// JobKind discriminates the tagged union of job configurations that flow
// through the queue.
type JobKind string

const (
	JobKindRootBackfill       JobKind = "root-backfill"
	JobKindRootIncremental    JobKind = "root-incremental"
	JobKindEnumerateContainer JobKind = "enumerate-container"
	JobKindProcessBatch       JobKind = "process-batch"
	JobKindIncrementalBackfill JobKind = "incremental-backfill"
	JobKindObjectSync         JobKind = "object-sync"
	JobKindCDCEventBatch      JobKind = "cdc-event-batch"
)

// JobConfig is the immutable payload carried by every queue message. The
// discriminator is Kind; fields not relevant to a given kind are left
// zero-valued. BackfillID correlates a root job to all of its descendant
// enumerate/process jobs so that progress accounting (§4.5) can be tallied.
type JobConfig struct {
	Kind     JobKind `json:"kind"`
	TenantID string  `json:"tenant_id"`
	Source   Source  `json:"source"`
	// Entity disambiguates which of a source's registered pipelines a
	// job routes through, since one Source can back more than one
	// entity kind (Salesforce sobject types, for instance). Set by the
	// root/enumerate extractor that first fans a job out.
	Entity               string `json:"entity"`
	BackfillID           string `json:"backfill_id,omitempty"`
	SuppressNotification bool   `json:"suppress_notification"`

	// Enumerate-container / object-sync
	ContainerID string `json:"container_id,omitempty"`

	// Process-batch
	EntityIDs    []string `json:"entity_ids,omitempty"`
	ObjectBatch  []string `json:"object_batches,omitempty"`
	FileBatch    []string `json:"file_batches,omitempty"`

	// CDC event batch
	CDCEvents []CDCEvent `json:"cdc_events,omitempty"`

	// Fireflies-style time-sliced backfill
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

// Marshal serializes the job config as the queue message body.
func (c JobConfig) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalJobConfig parses a queue message body back into a JobConfig.
func UnmarshalJobConfig(body []byte) (JobConfig, error) {
	var c JobConfig
	err := json.Unmarshal(body, &c)
	return c, err
}

// BackfillProgress tracks a root job's fan-out completion for operator
// visibility (§4.5).
type BackfillProgress struct {
	BackfillID       string `db:"backfill_id"`
	TenantID         string `db:"tenant_id"`
	TotalIngestJobs  int    `db:"total_ingest_jobs"`
	Attempted        int    `db:"attempted"`
	Done             int    `db:"done"`
}

// Complete reports whether every fanned-out job has both been attempted
// and succeeded.
func (p BackfillProgress) Complete() bool {
	return p.TotalIngestJobs > 0 && p.Done >= p.TotalIngestJobs
}
