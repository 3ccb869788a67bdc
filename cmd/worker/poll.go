package main

import (
	"context"
	"time"

	cerrors "github.com/brightlane/ingestflow/internal/errors"
	"github.com/brightlane/ingestflow/internal/logging"
	"github.com/brightlane/ingestflow/internal/metrics"
	"github.com/brightlane/ingestflow/internal/queue"
	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/config"
)

// receiveBatchSize caps how many ingest messages one Receive call pulls,
// independent of the worker pool's goroutine count.
const receiveBatchSize = 10

// poller runs the worker's ingest-queue consumption loop: one goroutine
// per configured concurrency slot, each independently polling, so a slow
// job in one goroutine never blocks the others.
type poller struct {
	queue     *queue.Adapter
	wirings   map[string]*tenantWiring
	logger    *logging.Logger
	metrics   *metrics.Metrics
	cfg       config.WorkerConfig
	serviceID string
}

func (p *poller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := p.queue.Receive(ctx, p.queue.IngestQueueURL(), receiveBatchSize, int32(p.cfg.PollWaitSeconds))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error(ctx, "receive from ingest queue", err, nil)
			continue
		}

		for _, m := range msgs {
			p.handle(ctx, m)
		}
	}
}

// handle dispatches one message through the owning tenant's pipeline and
// resolves the queue-visibility outcome: delete on success, extend on
// ExtendVisibilityError (§4.3), leave for redelivery on any other
// terminal failure.
func (p *poller) handle(ctx context.Context, m queue.Message) {
	cfg, err := domain.UnmarshalJobConfig(m.Body)
	if err != nil {
		p.logger.Error(ctx, "unmarshal job config, dropping message", err, nil)
		_ = p.queue.Delete(ctx, p.queue.IngestQueueURL(), m.Handle)
		return
	}

	ctx = logging.WithTraceID(ctx, logging.NewTraceID())
	ctx = logging.WithTenantID(ctx, cfg.TenantID)
	ctx = logging.WithSource(ctx, string(cfg.Source))

	w, ok := p.wirings[cfg.TenantID]
	if !ok {
		p.logger.Error(ctx, "no pipeline wired for tenant, dropping message", nil, map[string]interface{}{"tenant_id": cfg.TenantID})
		_ = p.queue.Delete(ctx, p.queue.IngestQueueURL(), m.Handle)
		return
	}

	p.logger.LogJobStart(ctx, string(cfg.Kind))
	start := time.Now()
	procErr := w.pipeline.ProcessJob(ctx, cfg)
	duration := time.Since(start)
	p.logger.LogJobResult(ctx, string(cfg.Kind), duration, procErr)
	p.metrics.RecordJob(p.serviceID, string(cfg.Kind), string(cfg.Source), jobStatus(procErr), duration)

	if procErr == nil {
		if delErr := p.queue.Delete(ctx, p.queue.IngestQueueURL(), m.Handle); delErr != nil {
			p.logger.Error(ctx, "delete processed message", delErr, nil)
		}
		return
	}

	if ev, ok := cerrors.AsExtendVisibility(procErr); ok {
		if visErr := p.queue.ChangeVisibility(ctx, p.queue.IngestQueueURL(), m.Handle, int32(ev.Seconds)); visErr != nil {
			p.logger.Error(ctx, "extend message visibility", visErr, nil)
		}
		return
	}

	// Terminal failure: leave the message in place. The queue's own
	// maxReceiveCount/DLQ policy governs eventual abandonment.
	p.logger.Error(ctx, "job failed", procErr, map[string]interface{}{"kind": string(cfg.Kind)})
}

func jobStatus(err error) string {
	if err == nil {
		return "success"
	}
	if _, ok := cerrors.AsExtendVisibility(err); ok {
		return "extended"
	}
	return "failure"
}
