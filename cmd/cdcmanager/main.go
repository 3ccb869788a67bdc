// Command cdcmanager runs the Salesforce change-data-capture listener
// fleet from spec §4.4: one reconnecting gRPC subscription per
// CDC-enabled tenant, reconciled against the control database every
// 60s, forwarding decoded events onto the ingest webhook queue.
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

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	_ "github.com/lib/pq"

	"github.com/brightlane/ingestflow/internal/cdc"
	"github.com/brightlane/ingestflow/internal/config"
	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/factory"
	"github.com/brightlane/ingestflow/internal/health"
	"github.com/brightlane/ingestflow/internal/logging"
	"github.com/brightlane/ingestflow/internal/metrics"
	"github.com/brightlane/ingestflow/internal/queue"
	"github.com/brightlane/ingestflow/internal/store"
	"github.com/brightlane/ingestflow/internal/vault"
)

const salesforceSource = domain.SourceSalesforce

var salesforceCDCObjects = []string{"Account", "Contact", "Opportunity", "Lead", "Case"}

func channelNames() []string {
	channels := make([]string, len(salesforceCDCObjects))
	for i, obj := range salesforceCDCObjects {
		channels[i] = fmt.Sprintf("/data/%sChangeEvent", obj)
	}
	return channels
}

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

	logger := logging.New(cfg.ServiceName+"-cdcmanager", cfg.Logging.Level, cfg.Logging.Format)
	met := metrics.New(cfg.ServiceName + "-cdcmanager")
	checker := health.NewChecker(cfg.ServiceName + "-cdcmanager")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open control database: %v", err)
	}
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
	forwarder := cdc.NewForwarder(queueAdapter)

	vaultBackend, err := vault.NewAzureBackend(cfg.Vault.URL)
	if err != nil {
		log.Fatalf("build vault backend: %v", err)
	}
	vaultClient := vault.New(vaultBackend)

	tenants, err := controlStore.ListTenants(rootCtx)
	if err != nil {
		log.Fatalf("list tenants: %v", err)
	}
	configs := make(map[string]*store.ConfigStore, len(tenants))
	for _, rec := range tenants {
		db, err := sql.Open("postgres", rec.DatabaseDSN)
		if err != nil {
			logger.Error(rootCtx, "open tenant database, skipping from credential resolution", err, map[string]interface{}{"tenant_id": rec.ID})
			continue
		}
		configs[rec.ID] = store.NewConfigStore(db)
	}
	fac := factory.New(vaultClient, configs)

	dial := newDialer(cfg.CDC.Endpoint, fac)
	decoder := newSchemaDecoder(func(ctx context.Context) (*grpc.ClientConn, error) {
		return grpc.NewClient(cfg.CDC.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	})

	manager := cdc.NewManager(salesforceSource, channelNames(), controlStore, dial, decoder, forwarder, logger)
	manager.OnListenerStateChange(func(tenantID, source string, previous, next cdc.State) {
		met.SetCDCListenerState(cfg.ServiceName, tenantID, source, string(previous), string(next))
	})

	checker.RegisterCheck("cdc_fleet", func() error {
		if manager.TenantCount() == 0 && len(tenants) > 0 {
			return fmt.Errorf("no cdc listeners running despite %d tenants", len(tenants))
		}
		return nil
	})
	checker.SetReady(true)

	healthSrv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Health.Host, cfg.Health.Port), Handler: checker.Router()}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "health server stopped", err, nil)
		}
	}()

	logger.Info(rootCtx, "cdc manager bootstrapped", map[string]interface{}{"tenant_count": len(tenants)})

	managerDone := make(chan error, 1)
	go func() { managerDone <- manager.Run(rootCtx) }()

	select {
	case <-rootCtx.Done():
		logger.Info(context.Background(), "shutdown signal received", nil)
	case err := <-managerDone:
		if err != nil {
			logger.Error(context.Background(), "cdc manager stopped unexpectedly", err, nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	<-managerDone
}
