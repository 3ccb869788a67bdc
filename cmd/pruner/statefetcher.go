package main

import (
	"context"
	"strings"

	"github.com/brightlane/ingestflow/internal/domain"
	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/extractor"
	"github.com/brightlane/ingestflow/internal/pruner"
)

// fetcherStateFetcher adapts the same extractor.EntityFetcher a source's
// process extractor already uses into pruner.SourceStateFetcher: a
// missing entity (NotFoundError) means deleted, and a VisibilityChecker
// (when the source has one) reports the fail-closed visibility flag the
// same way the incremental/process extractors do. One vendor round
// trip per id rather than a true batch-get, since none of the wired
// connectors expose a FetchStates-shaped bulk endpoint.
type fetcherStateFetcher struct {
	source  domain.Source
	fetcher extractor.EntityFetcher
	visible extractor.VisibilityChecker // nil if the source has no privacy model
}

func newFetcherStateFetcher(source domain.Source, fetcher extractor.EntityFetcher, visible extractor.VisibilityChecker) *fetcherStateFetcher {
	return &fetcherStateFetcher{source: source, fetcher: fetcher, visible: visible}
}

func (f *fetcherStateFetcher) FetchStates(ctx context.Context, entityIDs []string) ([]pruner.SourceState, error) {
	states := make([]pruner.SourceState, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		container, providerID := splitContainerEntity(f.source, entityID)
		artifact, err := f.fetcher.FetchEntity(ctx, container, providerID)
		if err != nil {
			if _, ok := cerrors.AsNotFound(err); ok {
				states = append(states, pruner.SourceState{EntityID: entityID, Exists: false})
				continue
			}
			return nil, err
		}

		state := pruner.SourceState{EntityID: entityID, Exists: true}
		if f.visible != nil {
			visible := !f.visible.IsPrivate(artifact)
			state.Visible = &visible
		}
		states = append(states, state)
	}
	return states, nil
}

// splitContainerEntity inverts domain.EntityID's "<source>[_<container>]_<providerID>"
// scheme, assuming (true for every container id this engine assigns:
// numeric GitLab/Teamwork ids, Figma team ids, "default", Attio object
// slugs) that the container segment itself carries no underscore.
func splitContainerEntity(source domain.Source, entityID string) (container, providerID string) {
	rest := strings.TrimPrefix(entityID, string(source)+"_")
	idx := strings.Index(rest, "_")
	if idx < 0 {
		return "", rest
	}
	return rest[:idx], rest[idx+1:]
}
