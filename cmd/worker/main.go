// Command worker runs the ingestion engine's job-processing fleet: it
// bootstraps every enabled tenant's connector pipeline and polls the
// ingest FIFO queue, dispatching each job through extractor.Pipeline and
// handling ExtendVisibilityError per the backoff protocol in §4.3.
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
	"sync"
	"syscall"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq"

	"github.com/brightlane/ingestflow/internal/config"
	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/extractor"
	"github.com/brightlane/ingestflow/internal/factory"
	"github.com/brightlane/ingestflow/internal/health"
	"github.com/brightlane/ingestflow/internal/logging"
	"github.com/brightlane/ingestflow/internal/metrics"
	"github.com/brightlane/ingestflow/internal/queue"
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

	logger := logging.New(cfg.ServiceName+"-worker", cfg.Logging.Level, cfg.Logging.Format)
	met := metrics.New(cfg.ServiceName + "-worker")
	checker := health.NewChecker(cfg.ServiceName + "-worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open control database: %v", err)
	}
	configurePool(controlDB, cfg)
	checker.RegisterCheck("control_database", func() error { return controlDB.Ping() })

	controlStore := store.NewControlStore(controlDB)

	awsConf, err := awscfg.LoadDefaultConfig(rootCtx, awscfg.WithRegion(cfg.Queue.Region))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	sqsClient := sqs.NewFromConfig(awsConf)
	s3Client := s3.NewFromConfig(awsConf)
	kmsClient := kms.NewFromConfig(awsConf)

	blobs, err := queue.NewBlobStore(rootCtx, s3Client, kmsClient, cfg.Queue.BlobBucket, cfg.Queue.BlobKMSKeyID)
	if err != nil {
		log.Fatalf("build blob store: %v", err)
	}
	queueAdapter := queue.New(sqsClient, cfg.Queue.IngestQueueURL, cfg.Queue.WebhookQueueURL, blobs)

	vaultBackend, err := vault.NewAzureBackend(cfg.Vault.URL)
	if err != nil {
		log.Fatalf("build vault backend: %v", err)
	}
	vaultClient := vault.New(vaultBackend)

	rlRegistry := ratelimit.NewRegistry()

	tenants, err := controlStore.ListTenants(rootCtx)
	if err != nil {
		log.Fatalf("list tenants: %v", err)
	}

	configs := make(map[string]*store.ConfigStore, len(tenants))
	wirings := make(map[string]*tenantWiring, len(tenants))

	for _, rec := range tenants {
		db, err := openTenantDB(rec.DatabaseDSN)
		if err != nil {
			logger.Error(rootCtx, "open tenant database, skipping tenant", err, map[string]interface{}{"tenant_id": rec.ID})
			continue
		}
		configs[rec.ID] = store.NewConfigStore(db)
	}

	fac := factory.New(vaultClient, configs)

	for _, rec := range tenants {
		w, err := buildTenantWiring(rootCtx, rec, fac, queueAdapter, rlRegistry, logger)
		if err != nil {
			logger.Error(rootCtx, "wire tenant, skipping tenant", err, map[string]interface{}{"tenant_id": rec.ID})
			continue
		}
		wirings[rec.ID] = w
	}

	logger.Info(rootCtx, "worker bootstrapped", map[string]interface{}{"tenant_count": len(wirings)})
	checker.SetReady(true)

	healthSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port), Handler: checker.Router()}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "health server stopped", err, nil)
		}
	}()

	p := &poller{
		queue:     queueAdapter,
		wirings:   wirings,
		logger:    logger,
		metrics:   met,
		cfg:       cfg.Worker,
		serviceID: cfg.ServiceName,
	}

	var wg sync.WaitGroup
	for i := 0; i < maxInt(cfg.Worker.Concurrency, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.run(rootCtx)
		}()
	}

	<-rootCtx.Done()
	logger.Info(context.Background(), "shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	wg.Wait()
}

func configurePool(db *sql.DB, cfg *config.Config) {
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}
}

func openTenantDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// noopIndexingCallback logs the indexing handoff rather than calling a
// real index writer, since the index service is an external collaborator
// specified only at its interface (out of scope per the engine's own
// boundary).
func noopIndexingCallback(logger *logging.Logger) extractor.IndexingCallback {
	return func(ctx context.Context, entityIDs []string, source domain.Source, tenantID, backfillID string, suppressNotification bool) error {
		logger.Info(ctx, "indexing callback fired", map[string]interface{}{
			"source": string(source), "tenant_id": tenantID, "backfill_id": backfillID, "entity_count": len(entityIDs),
		})
		return nil
	}
}
