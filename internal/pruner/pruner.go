// Package pruner implements the template-method entity deletion and
// stale-reconciliation sweep from spec §4.6: authoritatively remove an
// entity from the artifact store and the downstream index, and
// periodically find documents the source no longer vouches for.
package pruner

import (
	"context"
	"fmt"
)

// IndexWriter deletes a document from a tenant's index namespace
// (e.g. "tenant-<id>"), the downstream half of delete_entity (§4.6
// step 3).
type IndexWriter interface {
	DeleteDocument(ctx context.Context, tenantID, docID string) error
}

// ArtifactDeleter removes an artifact row, the upstream half of
// delete_entity (§4.6 step 1).
type ArtifactDeleter interface {
	Delete(ctx context.Context, entity, entityID string) error
}

// DocIDResolver maps an entity id to the index document id, a
// connector-specific function bound by each source façade (§4.6).
type DocIDResolver func(entityID string) string

// Pruner implements delete_entity(entity_id, tenant, db_pool,
// doc_id_resolver, entity_kind) -> bool (§4.6).
type Pruner struct {
	artifacts ArtifactDeleter
	index     IndexWriter
}

func New(artifacts ArtifactDeleter, index IndexWriter) *Pruner {
	return &Pruner{artifacts: artifacts, index: index}
}

// DeleteEntity runs both deletion steps and reports true only if both
// succeeded; a failure in either step is returned so the caller can
// retry or route to the dead-letter path, per §4.6 step 4.
func (p *Pruner) DeleteEntity(ctx context.Context, tenantID, entityKind, entityID string, resolveDocID DocIDResolver) (bool, error) {
	if err := p.artifacts.Delete(ctx, entityKind, entityID); err != nil {
		return false, fmt.Errorf("delete artifact %s/%s: %w", entityKind, entityID, err)
	}

	docID := resolveDocID(entityID)
	if err := p.index.DeleteDocument(ctx, tenantID, docID); err != nil {
		return false, fmt.Errorf("delete index document %s: %w", docID, err)
	}
	return true, nil
}

// Facade binds entity_kind and doc_id_resolver for one source, exposing
// a named delete_<source> method the way the teacher's Salesforce and
// Teamwork pruners do (§4.6).
type Facade struct {
	pruner     *Pruner
	entityKind string
	resolver   DocIDResolver
}

func NewFacade(p *Pruner, entityKind string, resolver DocIDResolver) *Facade {
	return &Facade{pruner: p, entityKind: entityKind, resolver: resolver}
}

func (f *Facade) Delete(ctx context.Context, tenantID, entityID string) (bool, error) {
	return f.pruner.DeleteEntity(ctx, tenantID, f.entityKind, entityID, f.resolver)
}

// EntityKind returns the entity kind this façade was built for.
func (f *Facade) EntityKind() string { return f.entityKind }
