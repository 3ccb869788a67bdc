// Package extractor implements the worker-side job pipeline from
// spec §4.5: a root extractor discovers containers, an enumerate
// extractor lists and batches entities within one container, and a
// process extractor fetches, converts, and stores each entity, with
// incremental variants that skip enumeration entirely where the vendor
// supports a cursor.
package extractor

import (
	"context"
	"time"

	"github.com/brightlane/ingestflow/internal/domain"
)

// CHILD_JOB_BATCH_SIZE and INDEX_BATCH_SIZE per §4.5.
const (
	DefaultChildJobBatchSize = 100
	IndexBatchSize           = 100
	artifactUpsertBatchSize  = 50
)

// Container is one top-level discoverable unit (project, board,
// workspace, team) a root extractor enumerates.
type Container struct {
	ID         string
	Cursor     string // opaque provider cursor, persisted for incremental resume
	UpdatedAt  time.Time
}

// IndexingCallback notifies the downstream index writer that a batch of
// entity ids needs (re)indexing. Concrete wiring is owned by whatever
// invokes the pipeline (the worker harness), so extractor tests can
// supply a recording stub.
type IndexingCallback func(ctx context.Context, entityIDs []string, source domain.Source, tenantID, backfillID string, suppressNotification bool) error

// ContainerLister discovers the top-level containers for a tenant
// (root extractor, §4.5 step 1).
type ContainerLister interface {
	ListContainers(ctx context.Context, tenantID string) ([]Container, error)
}

// EntityPage is one page of entity ids within a container, with the
// cursor needed to fetch the next page.
type EntityPage struct {
	EntityIDs  []string
	NextCursor string
	Done       bool
	// LatestCommit/LatestUpdatedAt let the enumerate extractor persist a
	// resume cursor for the incremental extractor (§4.5 step 2).
	LatestCommit    string
	LatestUpdatedAt time.Time
}

// EntityLister lists entity ids within one container, paging until
// Done (enumerate extractor, §4.5 step 2).
type EntityLister interface {
	ListEntities(ctx context.Context, containerID, cursor string) (EntityPage, error)
}

// EntityFetcher fetches one entity's full representation, including any
// side data (comments, diffs, approvals), and converts it to an
// Artifact (process extractor, §4.5 step 3).
type EntityFetcher interface {
	FetchEntity(ctx context.Context, containerID, entityID string) (domain.Artifact, error)
}

// UpdatedSinceLister lists entities updated strictly after a watermark,
// used by incremental extractors that skip enumeration (§4.5).
type UpdatedSinceLister interface {
	ListUpdatedSince(ctx context.Context, containerID string, since time.Time) (items []domain.Artifact, maxUpdatedAt time.Time, err error)
}

// VisibilityChecker reports whether an artifact is indexable under the
// fail-closed privacy rule (§4.5): only an explicit false is visible;
// missing/null is treated as private.
type VisibilityChecker interface {
	IsPrivate(artifact domain.Artifact) bool
}

// ArtifactStore is the persistence surface the process extractor writes
// through.
type ArtifactStore interface {
	UpsertBatch(ctx context.Context, artifacts []domain.Artifact) error
	Delete(ctx context.Context, entity, entityID string) error
}

// ProgressStore tracks backfill fan-out completion (§4.5 "backfill
// progress accounting").
type ProgressStore interface {
	SetTotal(ctx context.Context, backfillID, tenantID string, total int) error
	IncrementAttempted(ctx context.Context, backfillID string, n int) error
	IncrementDone(ctx context.Context, backfillID string, n int) error
}

// chunk splits ids into groups of at most size, used for batched
// upserts and indexing callbacks.
func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}
