package pruner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexedDocLister struct {
	docIDs []string
}

func (f *fakeIndexedDocLister) ListIndexedDocIDs(ctx context.Context, tenantID string) ([]string, error) {
	return f.docIDs, nil
}

type fakeSourceStateFetcher struct {
	states map[string]SourceState
}

func (f *fakeSourceStateFetcher) FetchStates(ctx context.Context, entityIDs []string) ([]SourceState, error) {
	var out []SourceState
	for _, id := range entityIDs {
		if s, ok := f.states[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func visible(v bool) *bool { return &v }

func TestReconciler_FindStaleDocuments(t *testing.T) {
	lister := &fakeIndexedDocLister{docIDs: []string{"a", "b", "c", "d"}}
	fetcher := &fakeSourceStateFetcher{states: map[string]SourceState{
		"a": {EntityID: "a", Exists: true, Visible: visible(true)},
		"b": {EntityID: "b", Exists: true, Visible: visible(false)},
		"c": {EntityID: "c", Exists: true, Visible: nil},
		// "d" deliberately absent: source no longer returns it at all
	}}

	r := NewReconciler(lister, fetcher, nil)
	stale, err := r.FindStaleDocuments(context.Background(), "tenant1")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b", "c", "d"}, stale)
}

func TestReconciler_NoIndexedDocs(t *testing.T) {
	r := NewReconciler(&fakeIndexedDocLister{}, &fakeSourceStateFetcher{states: map[string]SourceState{}}, nil)
	stale, err := r.FindStaleDocuments(context.Background(), "tenant1")
	assert.NoError(t, err)
	assert.Empty(t, stale)
}

func TestReconciler_DocIDToEntityIDMapping(t *testing.T) {
	lister := &fakeIndexedDocLister{docIDs: []string{"doc-a"}}
	fetcher := &fakeSourceStateFetcher{states: map[string]SourceState{
		"a": {EntityID: "a", Exists: true, Visible: visible(true)},
	}}

	r := NewReconciler(lister, fetcher, func(docID string) string { return docID[len("doc-"):] })
	stale, err := r.FindStaleDocuments(context.Background(), "tenant1")
	require.NoError(t, err)
	assert.Empty(t, stale, "visible and existing entity should not be reported stale")
}

func TestReconciler_BatchesAboveFetchSize(t *testing.T) {
	docIDs := make([]string, reconcileFetchBatchSize+5)
	states := make(map[string]SourceState, len(docIDs))
	for i := range docIDs {
		id := string(rune('a'+i%26)) + string(rune(i))
		docIDs[i] = id
		states[id] = SourceState{EntityID: id, Exists: true, Visible: visible(true)}
	}

	r := NewReconciler(&fakeIndexedDocLister{docIDs: docIDs}, &fakeSourceStateFetcher{states: states}, nil)
	stale, err := r.FindStaleDocuments(context.Background(), "tenant1")
	require.NoError(t, err)
	assert.Empty(t, stale)
}
