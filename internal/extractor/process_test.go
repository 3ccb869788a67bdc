package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlane/ingestflow/internal/domain"
)

type fakeEntityFetcher struct {
	byID map[string]domain.Artifact
}

func (f *fakeEntityFetcher) FetchEntity(ctx context.Context, containerID, entityID string) (domain.Artifact, error) {
	return f.byID[entityID], nil
}

type fakeVisibilityChecker struct {
	private map[string]bool
}

func (f *fakeVisibilityChecker) IsPrivate(a domain.Artifact) bool {
	return f.private[a.EntityID]
}

type fakeArtifactStore struct {
	upserted [][]domain.Artifact
	deleted  []string
}

func (s *fakeArtifactStore) UpsertBatch(ctx context.Context, artifacts []domain.Artifact) error {
	s.upserted = append(s.upserted, artifacts)
	return nil
}

func (s *fakeArtifactStore) Delete(ctx context.Context, entity, entityID string) error {
	s.deleted = append(s.deleted, entityID)
	return nil
}

type fakeProgressStore struct {
	attempted, done int
}

func (p *fakeProgressStore) SetTotal(ctx context.Context, backfillID, tenantID string, total int) error {
	return nil
}
func (p *fakeProgressStore) IncrementAttempted(ctx context.Context, backfillID string, n int) error {
	p.attempted += n
	return nil
}
func (p *fakeProgressStore) IncrementDone(ctx context.Context, backfillID string, n int) error {
	p.done += n
	return nil
}

func recordingCallback(calls *[][]string) IndexingCallback {
	return func(ctx context.Context, entityIDs []string, source domain.Source, tenantID, backfillID string, suppressNotification bool) error {
		*calls = append(*calls, entityIDs)
		return nil
	}
}

func TestProcessExtractor_VisibleEntitiesAreUpsertedAndIndexed(t *testing.T) {
	fetch := &fakeEntityFetcher{byID: map[string]domain.Artifact{
		"1": {EntityID: "1"},
		"2": {EntityID: "2"},
	}}
	store := &fakeArtifactStore{}
	progress := &fakeProgressStore{}
	var indexed [][]string
	checker := &fakeVisibilityChecker{private: map[string]bool{}}

	p := NewProcessExtractor(domain.SourceGitLabMR, "gitlab_merge_request", fetch, store, progress, recordingCallback(&indexed), checker)

	err := p.Process(context.Background(), "tenant1", "42", "bf-1", []string{"1", "2"}, false)
	require.NoError(t, err)

	require.Len(t, store.upserted, 1)
	assert.Len(t, store.upserted[0], 2)
	assert.Empty(t, store.deleted)
	require.Len(t, indexed, 1)
	assert.ElementsMatch(t, []string{"1", "2"}, indexed[0])
	assert.Equal(t, 2, progress.attempted)
	assert.Equal(t, 2, progress.done)
}

func TestProcessExtractor_MissingVisibilityTreatedAsPrivate(t *testing.T) {
	fetch := &fakeEntityFetcher{byID: map[string]domain.Artifact{
		"1": {EntityID: "1"},
	}}
	store := &fakeArtifactStore{}
	progress := &fakeProgressStore{}
	var indexed [][]string
	// No entry for "1" in private map: IsPrivate returns false here since
	// this fake defaults to visible, so exercise the real fail-closed
	// invariant via a checker that defaults to private instead.
	checker := &alwaysPrivateChecker{}

	p := NewProcessExtractor(domain.SourceTeamworkTask, "teamwork_task", fetch, store, progress, recordingCallback(&indexed), checker)

	err := p.Process(context.Background(), "tenant1", "7", "", []string{"1"}, false)
	require.NoError(t, err)

	assert.Empty(t, store.upserted, "no visible artifacts should be upserted")
	assert.Equal(t, []string{"1"}, store.deleted, "entity with no visibility signal must be de-indexed under the fail-closed rule")
}

type alwaysPrivateChecker struct{}

func (alwaysPrivateChecker) IsPrivate(a domain.Artifact) bool { return true }

func TestProcessExtractor_GuardrailBlocksMassDeindex(t *testing.T) {
	byID := make(map[string]domain.Artifact, 10)
	ids := make([]string, 10)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		byID[id] = domain.Artifact{EntityID: id}
		ids[i] = id
	}
	fetch := &fakeEntityFetcher{byID: byID}
	store := &fakeArtifactStore{}
	progress := &fakeProgressStore{}
	var indexed [][]string
	checker := &alwaysPrivateChecker{} // every entity reports private: 100% > 20% guardrail

	p := NewProcessExtractor(domain.SourceFigmaFile, "figma_file", fetch, store, progress, recordingCallback(&indexed), checker)

	err := p.Process(context.Background(), "tenant1", "team1", "", ids, false)
	require.NoError(t, err)

	assert.Empty(t, store.deleted, "de-index must be suppressed when missing-visibility ratio exceeds the guardrail")
}

func TestProcessExtractor_ProcessCDCEvents_RoutesDeleteAndUpsert(t *testing.T) {
	fetch := &fakeEntityFetcher{byID: map[string]domain.Artifact{
		"rec-2": {EntityID: "rec-2"},
	}}
	store := &fakeArtifactStore{}
	progress := &fakeProgressStore{}
	var indexed [][]string
	checker := &fakeVisibilityChecker{private: map[string]bool{}}
	p := NewProcessExtractor(domain.SourceSalesforce, "salesforce_Account", fetch, store, progress, recordingCallback(&indexed), checker)

	var deletedIDs []string
	deleteFn := func(ctx context.Context, entityID string) error {
		deletedIDs = append(deletedIDs, entityID)
		return nil
	}

	events := []domain.CDCEvent{
		{RecordID: "rec-1", Operation: domain.CDCDelete},
		{RecordID: "rec-2", Operation: domain.CDCOperation("UPDATE")},
	}
	err := p.ProcessCDCEvents(context.Background(), "tenant1", "", events, deleteFn)
	require.NoError(t, err)

	assert.Equal(t, []string{"rec-1"}, deletedIDs)
	require.Len(t, store.upserted, 1)
	assert.Len(t, store.upserted[0], 1)
}
