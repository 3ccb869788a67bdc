package pruner

import (
	"context"
	"fmt"
)

// reconcileFetchBatchSize is tuned to fit within one vendor API call
// (~50), per §4.6.
const reconcileFetchBatchSize = 50

// IndexedDocLister lists every indexed doc-id for a tenant, the first
// input to find_stale_documents (§4.6).
type IndexedDocLister interface {
	ListIndexedDocIDs(ctx context.Context, tenantID string) ([]string, error)
}

// SourceState is what a batch-fetch from the source reports back for
// one entity during reconciliation: whether it still exists, and
// whether visibility is explicitly false, explicitly true, or absent.
type SourceState struct {
	EntityID string
	Exists   bool
	// Visible is nil when the source never returned a visibility
	// field for this entity (fail-closed: treated as private).
	Visible *bool
}

// SourceStateFetcher batch-fetches current source state for a page of
// doc-ids, one provider round trip per reconcileFetchBatchSize entities
// (§4.6).
type SourceStateFetcher interface {
	FetchStates(ctx context.Context, entityIDs []string) ([]SourceState, error)
}

// Reconciler runs find_stale_documents for one source/entity kind.
type Reconciler struct {
	indexed IndexedDocLister
	fetcher SourceStateFetcher
	// DocIDToEntityID maps an indexed doc-id back to the entity id the source
	// fetch needs; identity for sources whose doc-id is the entity id.
	DocIDToEntityID func(docID string) string
}

func NewReconciler(indexed IndexedDocLister, fetcher SourceStateFetcher, docIDToEntityID func(string) string) *Reconciler {
	if docIDToEntityID == nil {
		docIDToEntityID = func(id string) string { return id }
	}
	return &Reconciler{indexed: indexed, fetcher: fetcher, DocIDToEntityID: docIDToEntityID}
}

// FindStaleDocuments loads every indexed doc-id for the tenant,
// batch-fetches current source state, and returns the doc-ids that
// should be deleted because the source no longer vouches for them:
// not returned (deleted), visibility flipped to private, or visibility
// missing (fail-closed). The caller is expected to iterate DeleteEntity
// on each returned id (§4.6).
func (r *Reconciler) FindStaleDocuments(ctx context.Context, tenantID string) ([]string, error) {
	docIDs, err := r.indexed.ListIndexedDocIDs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list indexed doc ids: %w", err)
	}
	if len(docIDs) == 0 {
		return nil, nil
	}

	entityToDoc := make(map[string]string, len(docIDs))
	entityIDs := make([]string, 0, len(docIDs))
	for _, docID := range docIDs {
		entityID := r.DocIDToEntityID(docID)
		entityToDoc[entityID] = docID
		entityIDs = append(entityIDs, entityID)
	}

	var stale []string
	for _, batch := range chunkStrings(entityIDs, reconcileFetchBatchSize) {
		states, err := r.fetcher.FetchStates(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("fetch source states: %w", err)
		}
		seen := make(map[string]bool, len(states))
		for _, state := range states {
			seen[state.EntityID] = true
			if !state.Exists {
				stale = append(stale, entityToDoc[state.EntityID])
				continue
			}
			if state.Visible == nil || !*state.Visible {
				stale = append(stale, entityToDoc[state.EntityID])
			}
		}
		// Entities the source didn't return at all in the batch response
		// are treated the same as "not returned" (deleted).
		for _, entityID := range batch {
			if !seen[entityID] {
				stale = append(stale, entityToDoc[entityID])
			}
		}
	}
	return stale, nil
}

func chunkStrings(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
