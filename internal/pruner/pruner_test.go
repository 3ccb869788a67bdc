package pruner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeArtifactDeleter struct {
	deleted []string
	err     error
}

func (f *fakeArtifactDeleter) Delete(ctx context.Context, entity, entityID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, entity+"/"+entityID)
	return nil
}

type fakeIndexWriter struct {
	deleted []string
	err     error
}

func (f *fakeIndexWriter) DeleteDocument(ctx context.Context, tenantID, docID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, tenantID+"/"+docID)
	return nil
}

func identityResolver(entityID string) string { return entityID }

func TestPruner_DeleteEntity_Success(t *testing.T) {
	artifacts := &fakeArtifactDeleter{}
	index := &fakeIndexWriter{}
	p := New(artifacts, index)

	ok, err := p.DeleteEntity(context.Background(), "tenant1", "gitlab_merge_request", "gitlab_mr_42_99", identityResolver)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"gitlab_merge_request/gitlab_mr_42_99"}, artifacts.deleted)
	assert.Equal(t, []string{"tenant1/gitlab_mr_42_99"}, index.deleted)
}

func TestPruner_DeleteEntity_ArtifactDeleteFailsBeforeIndex(t *testing.T) {
	artifacts := &fakeArtifactDeleter{err: errors.New("db down")}
	index := &fakeIndexWriter{}
	p := New(artifacts, index)

	ok, err := p.DeleteEntity(context.Background(), "tenant1", "gitlab_merge_request", "gitlab_mr_42_99", identityResolver)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Empty(t, index.deleted, "index delete must not run once the artifact delete fails")
}

func TestPruner_DeleteEntity_IndexDeleteFails(t *testing.T) {
	artifacts := &fakeArtifactDeleter{}
	index := &fakeIndexWriter{err: errors.New("index unreachable")}
	p := New(artifacts, index)

	ok, err := p.DeleteEntity(context.Background(), "tenant1", "gitlab_merge_request", "gitlab_mr_42_99", identityResolver)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Len(t, artifacts.deleted, 1, "artifact delete already committed before the index call failed")
}

func TestFacade_Delete_BindsEntityKindAndResolver(t *testing.T) {
	artifacts := &fakeArtifactDeleter{}
	index := &fakeIndexWriter{}
	resolveCalls := 0
	resolver := func(entityID string) string {
		resolveCalls++
		return "doc-" + entityID
	}

	f := NewFacade(New(artifacts, index), "teamwork_task", resolver)
	assert.Equal(t, "teamwork_task", f.EntityKind())

	ok, err := f.Delete(context.Background(), "tenant1", "teamwork_task_7_8")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, resolveCalls)
	assert.Equal(t, []string{"tenant1/doc-teamwork_task_7_8"}, index.deleted)
}
