package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civium-ai/custodia/internal/api/handlers"
	"github.com/civium-ai/custodia/internal/config"
	"github.com/civium-ai/custodia/internal/database"
	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/jobs"
	"github.com/civium-ai/custodia/internal/openai"
	"github.com/civium-ai/custodia/internal/repository"
	"github.com/civium-ai/custodia/internal/server"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/civium-ai/custodia/internal/storage"
	"github.com/civium-ai/custodia/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the custodia API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if cfg.HasSentry() {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	tenantRepo := repository.NewTenantRepository(pool)
	credRepo := repository.NewCredentialRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	fragmentRepo := repository.NewFragmentRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	retrievalRepo := repository.NewRetrievalRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, credRepo, uuidGen)

	if cfg.InitTenantName != "" {
		if err := bootstrapInitialTenant(ctx, cfg, tenantRepo, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial tenant: %w", err)
		}
	}

	var embeddingClient service.EmbeddingClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		embeddingClient = &unavailableEmbeddingClient{}
		log.Println("no OPENAI_API_KEY configured: retrieval and indexing will fail closed")
	}

	ledgerSvc := service.NewLedgerService(ledgerRepo)
	retrievalSvc := service.NewRetrievalService(retrievalRepo, embeddingClient, ledgerSvc)
	documentSvc := service.NewDocumentService(txRunner, documentRepo, ledgerSvc)
	auditQuerySvc := service.NewAuditQueryService(ledgerRepo)
	verifier := service.NewChainVerifier(ledgerRepo)

	var store service.ObjectStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		store = s3Client
	} else {
		store = &unavailableObjectStore{}
		log.Println("no object storage configured: audit exports will fail closed")
	}
	exportSvc := service.NewExportService(verifier, ledgerRepo, store)

	var indexWorker *jobs.Worker
	if cfg.HasOpenAI() {
		indexerSvc := service.NewIndexerService(embeddingClient, documentRepo, fragmentRepo)
		processor := jobs.NewIndexWorker(indexJobRepo, indexerSvc)
		indexWorker = jobs.NewWorker(processor, cfg.IndexPollInterval)
		go indexWorker.Start(ctx)
		log.Println("index worker started")
	}

	routerCfg := server.RouterConfig{
		CredentialValidator: authSvc,
		RetrievalHandler:    handlers.NewRetrievalHandler(retrievalSvc),
		DocumentHandler:     handlers.NewDocumentHandler(documentSvc),
		AuditHandler:        handlers.NewAuditHandler(ledgerSvc, auditQuerySvc, verifier, exportSvc),
		AdminHandler:        handlers.NewAdminHandler(authSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if indexWorker != nil {
		indexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

type unavailableEmbeddingClient struct{}

func (c *unavailableEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding client not configured: OPENAI_API_KEY required")
}

type unavailableObjectStore struct{}

func (s *unavailableObjectStore) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	return fmt.Errorf("object storage not configured: S3_ENDPOINT required")
}

func (s *unavailableObjectStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("object storage not configured: S3_ENDPOINT required")
}

func bootstrapInitialTenant(ctx context.Context, cfg *config.Config, tenantRepo *repository.TenantRepository, authSvc *service.AuthService) error {
	tenant, err := tenantRepo.GetByName(ctx, cfg.InitTenantName)
	if err != nil && err != domain.ErrTenantNotFound {
		return fmt.Errorf("failed to check existing tenant: %w", err)
	}

	if tenant == nil {
		tenant, err = authSvc.CreateTenant(ctx, cfg.InitTenantName)
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}
		log.Printf("bootstrap: created tenant '%s' (id: %s)", tenant.Name, tenant.ID)
	} else {
		log.Printf("bootstrap: tenant '%s' already exists (id: %s)", tenant.Name, tenant.ID)
	}

	return nil
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
