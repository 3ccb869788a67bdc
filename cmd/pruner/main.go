// Command pruner runs the reconciliation sweep from spec §4.6 on a
// cron schedule: for every tenant and every container-based source,
// list the tenant's indexed documents, batch-fetch current source
// state, and delete whatever the source no longer vouches for.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	_ "github.com/lib/pq"

	"github.com/brightlane/ingestflow/internal/config"
	"github.com/brightlane/ingestflow/internal/factory"
	"github.com/brightlane/ingestflow/internal/health"
	"github.com/brightlane/ingestflow/internal/logging"
	"github.com/brightlane/ingestflow/internal/metrics"
	"github.com/brightlane/ingestflow/internal/pruner"
	"github.com/brightlane/ingestflow/internal/ratelimit"
	"github.com/brightlane/ingestflow/internal/store"
	"github.com/brightlane/ingestflow/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (overrides CONFIG_FILE)")
	flag.Parse()
	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.ServiceName+"-pruner", cfg.Logging.Level, cfg.Logging.Format)
	met := metrics.New(cfg.ServiceName + "-pruner")
	checker := health.NewChecker(cfg.ServiceName + "-pruner")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open control database: %v", err)
	}
	checker.RegisterCheck("control_database", func() error { return controlDB.Ping() })
	controlStore := store.NewControlStore(controlDB)

	vaultBackend, err := vault.NewAzureBackend(cfg.Vault.URL)
	if err != nil {
		log.Fatalf("build vault backend: %v", err)
	}
	vaultClient := vault.New(vaultBackend)

	idx := newIndexClient(cfg.Index.BaseURL, time.Duration(cfg.Index.Timeout)*time.Second)
	rl := ratelimit.NewRegistry()

	var lastSweepErr error
	checker.RegisterCheck("last_sweep", func() error { return lastSweepErr })
	checker.SetReady(true)

	healthSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port), Handler: checker.Router()}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "health server stopped", err, nil)
		}
	}()

	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		lastSweepErr = runSweep(ctx, controlStore, vaultClient, idx, rl, logger, met, cfg.ServiceName)
		if lastSweepErr != nil {
			logger.Error(ctx, "reconciliation sweep failed", lastSweepErr, nil)
		}
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Pruner.CronSchedule, sweep); err != nil {
		log.Fatalf("schedule reconciliation sweep %q: %v", cfg.Pruner.CronSchedule, err)
	}
	scheduler.Start()
	logger.Info(rootCtx, "pruner bootstrapped", map[string]interface{}{"cron_schedule": cfg.Pruner.CronSchedule})

	<-rootCtx.Done()
	logger.Info(context.Background(), "shutdown signal received", nil)

	schedCtx := scheduler.Stop()
	<-schedCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)
}

// runSweep reconciles every tenant's container-based sources once,
// deleting whatever documents the reconciler flags as stale.
func runSweep(ctx context.Context, controlStore *store.ControlStore, vaultClient *vault.Client, idx *indexClient, rl *ratelimit.Registry, logger *logging.Logger, met *metrics.Metrics, service string) error {
	tenants, err := controlStore.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	configs := make(map[string]*store.ConfigStore, len(tenants))
	for _, rec := range tenants {
		db, err := sql.Open("postgres", rec.DatabaseDSN)
		if err != nil {
			logger.Error(ctx, "open tenant database, skipping from sweep", err, map[string]interface{}{"tenant_id": rec.ID})
			continue
		}
		configs[rec.ID] = store.NewConfigStore(db)
	}
	fac := factory.New(vaultClient, configs)

	var firstErr error
	for _, rec := range tenants {
		cfgStore, ok := configs[rec.ID]
		if !ok {
			continue
		}
		pruning, err := buildTenantPruning(ctx, rec, fac, cfgStore, rl, idx, logger)
		if err != nil {
			logger.Error(ctx, "wire tenant for reconciliation, skipping", err, map[string]interface{}{"tenant_id": rec.ID})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		staleDocIDs, err := pruning.reconciler.FindStaleDocuments(ctx, rec.ID)
		if err != nil {
			logger.Error(ctx, "find stale documents", err, map[string]interface{}{"tenant_id": rec.ID})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, docID := range staleDocIDs {
			kind, entityID := entityKindOf(docID, pruning.facades)
			facade, ok := pruning.facades[kind]
			if !ok {
				continue
			}
			if _, err := facade.Delete(ctx, rec.ID, entityID); err != nil {
				logger.Error(ctx, "delete stale document", err, map[string]interface{}{"tenant_id": rec.ID, "doc_id": docID})
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			met.RecordArtifactPruned(service, rec.ID, kind, "stale")
		}

		logger.Info(ctx, "tenant reconciliation swept", map[string]interface{}{"tenant_id": rec.ID, "stale_count": len(staleDocIDs)})
	}
	return firstErr
}

// entityKindOf recovers which façade's entity kind a doc-id (== entity
// id, since the pruner's DocIDToEntityID is identity) belongs to by
// matching its "<source>_<container>_" or "<source>_" prefix against
// the tenant's registered facades.
func entityKindOf(entityID string, facades map[string]*pruner.Facade) (kind, id string) {
	for kind := range facades {
		if prefix := kindPrefix(kind); prefix != "" && len(entityID) > len(prefix) && entityID[:len(prefix)] == prefix {
			return kind, entityID
		}
	}
	return "", entityID
}

func kindPrefix(kind string) string {
	switch kind {
	case "gitlab_merge_request":
		return "gitlab_mr_"
	case "teamwork_task":
		return "teamwork_task_"
	case "figma_file":
		return "figma_file_"
	case "canva_design":
		return "canva_design_"
	default:
		if len(kind) > len("attio_record_") && kind[:len("attio_record_")] == "attio_record_" {
			return kind + "_"
		}
		return ""
	}
}
