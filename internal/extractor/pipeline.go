package extractor

import (
	"context"
	"fmt"

	"github.com/brightlane/ingestflow/internal/domain"
)

// Pipeline is the uniform entrypoint every worker job dispatches
// through: process_job(job_id, config, ...) -> void (§4.5). It holds
// one extractor trio per (source, entity) pair the worker is configured
// to handle.
type Pipeline struct {
	root        map[string]*RootExtractor
	enumerate   map[string]*EnumerateExtractor
	process     map[string]*ProcessExtractor
	incremental map[string]*IncrementalExtractor
	cdcDelete   map[string]func(ctx context.Context, entityID string) error
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		root:        make(map[string]*RootExtractor),
		enumerate:   make(map[string]*EnumerateExtractor),
		process:     make(map[string]*ProcessExtractor),
		incremental: make(map[string]*IncrementalExtractor),
		cdcDelete:   make(map[string]func(ctx context.Context, entityID string) error),
	}
}

func key(source domain.Source, entity string) string { return string(source) + ":" + entity }

func (p *Pipeline) RegisterRoot(source domain.Source, entity string, e *RootExtractor) {
	p.root[key(source, entity)] = e
}

func (p *Pipeline) RegisterEnumerate(source domain.Source, entity string, e *EnumerateExtractor) {
	p.enumerate[key(source, entity)] = e
}

func (p *Pipeline) RegisterProcess(source domain.Source, entity string, e *ProcessExtractor) {
	p.process[key(source, entity)] = e
}

func (p *Pipeline) RegisterIncremental(source domain.Source, entity string, e *IncrementalExtractor) {
	p.incremental[key(source, entity)] = e
}

// RegisterCDCDeleter binds the pruner's connector-specific delete path
// for CDC DELETE events on this (source, entity).
func (p *Pipeline) RegisterCDCDeleter(source domain.Source, entity string, deleteFn func(ctx context.Context, entityID string) error) {
	p.cdcDelete[key(source, entity)] = deleteFn
}

// ProcessJob dispatches a single job by its Kind, matching the uniform
// signature every concrete extractor implements (§4.5). The (source,
// entity) pair that selects which registered trio handles the job
// comes from cfg.Entity, stamped in by whichever extractor first fanned
// the job out.
func (p *Pipeline) ProcessJob(ctx context.Context, cfg domain.JobConfig) error {
	k := key(cfg.Source, cfg.Entity)

	switch cfg.Kind {
	case domain.JobKindRootBackfill:
		e, ok := p.root[k]
		if !ok {
			return fmt.Errorf("no root extractor registered for %s", k)
		}
		return e.ProcessFullBackfill(ctx, cfg.TenantID)

	case domain.JobKindRootIncremental:
		e, ok := p.root[k]
		if !ok {
			return fmt.Errorf("no root extractor registered for %s", k)
		}
		return e.ProcessIncremental(ctx, cfg.TenantID)

	case domain.JobKindEnumerateContainer:
		e, ok := p.enumerate[k]
		if !ok {
			return fmt.Errorf("no enumerate extractor registered for %s", k)
		}
		return e.Process(ctx, cfg.TenantID, cfg.ContainerID, cfg.BackfillID)

	case domain.JobKindProcessBatch:
		e, ok := p.process[k]
		if !ok {
			return fmt.Errorf("no process extractor registered for %s", k)
		}
		return e.Process(ctx, cfg.TenantID, cfg.ContainerID, cfg.BackfillID, cfg.EntityIDs, cfg.SuppressNotification)

	case domain.JobKindIncrementalBackfill, domain.JobKindObjectSync:
		e, ok := p.incremental[k]
		if !ok {
			return fmt.Errorf("no incremental extractor registered for %s", k)
		}
		return e.Process(ctx, cfg.TenantID)

	case domain.JobKindCDCEventBatch:
		e, ok := p.process[k]
		if !ok {
			return fmt.Errorf("no process extractor registered for %s", k)
		}
		return e.ProcessCDCEvents(ctx, cfg.TenantID, cfg.ContainerID, cfg.CDCEvents, p.cdcDelete[k])

	default:
		return fmt.Errorf("unknown job kind %q", cfg.Kind)
	}
}
