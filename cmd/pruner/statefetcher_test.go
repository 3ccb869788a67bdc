package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
)

type fakeEntityFetcher struct {
	byID map[string]domain.Artifact
}

func (f *fakeEntityFetcher) FetchEntity(ctx context.Context, containerID, entityID string) (domain.Artifact, error) {
	a, ok := f.byID[containerID+"/"+entityID]
	if !ok {
		return domain.Artifact{}, &cerrors.NotFoundError{Resource: "gitlab_merge_request", ID: entityID}
	}
	return a, nil
}

type fakeVisibilityChecker struct {
	private map[string]bool
}

func (f *fakeVisibilityChecker) IsPrivate(a domain.Artifact) bool {
	return f.private[a.EntityID]
}

func TestSplitContainerEntity(t *testing.T) {
	t.Run("with container", func(t *testing.T) {
		container, providerID := splitContainerEntity(domain.SourceGitLabMR, "gitlab_mr_42_99")
		assert.Equal(t, "42", container)
		assert.Equal(t, "99", providerID)
	})

	t.Run("without container", func(t *testing.T) {
		container, providerID := splitContainerEntity(domain.SourceLinearIssue, "linear_issue_abc123")
		assert.Equal(t, "", container)
		assert.Equal(t, "abc123", providerID)
	})
}

func TestFetcherStateFetcher_FetchStates(t *testing.T) {
	fetcher := &fakeEntityFetcher{byID: map[string]domain.Artifact{
		"42/1": {EntityID: "gitlab_mr_42_1"},
	}}
	sf := newFetcherStateFetcher(domain.SourceGitLabMR, fetcher, nil)

	states, err := sf.FetchStates(context.Background(), []string{"gitlab_mr_42_1", "gitlab_mr_42_2"})
	require.NoError(t, err)
	require.Len(t, states, 2)

	byID := make(map[string]bool, 2)
	for _, s := range states {
		byID[s.EntityID] = s.Exists
	}
	assert.True(t, byID["gitlab_mr_42_1"])
	assert.False(t, byID["gitlab_mr_42_2"], "not-found entity should report Exists=false")
}

func TestFetcherStateFetcher_VisibilityFailsClosed(t *testing.T) {
	fetcher := &fakeEntityFetcher{byID: map[string]domain.Artifact{
		"7/8": {EntityID: "teamwork_task_7_8"},
	}}
	checker := &fakeVisibilityChecker{private: map[string]bool{"teamwork_task_7_8": true}}
	sf := newFetcherStateFetcher(domain.SourceTeamworkTask, fetcher, checker)

	states, err := sf.FetchStates(context.Background(), []string{"teamwork_task_7_8"})
	require.NoError(t, err)
	require.Len(t, states, 1)

	assert.True(t, states[0].Exists)
	require.NotNil(t, states[0].Visible)
	assert.False(t, *states[0].Visible, "checker reporting private must surface Visible=false")
}
