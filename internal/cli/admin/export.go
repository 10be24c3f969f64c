package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civium-ai/custodia/internal/config"
	"github.com/civium-ai/custodia/internal/repository"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/civium-ai/custodia/internal/storage"
	"github.com/spf13/cobra"
)

func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a tenant's audit chain to object storage",
		Long:  "Verify a tenant's audit chain and, if intact, write it to object storage as JSON lines",
		RunE:  runExport,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenantRef, _ := cmd.Flags().GetString("tenant")
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasS3() {
		return fmt.Errorf("export requires object storage: set CUSTODIA_S3_ENDPOINT, CUSTODIA_S3_ACCESS_KEY_ID, CUSTODIA_S3_SECRET_ACCESS_KEY")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	tenantID, err := resolveTenantID(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

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

	ledgerRepo := repository.NewLedgerRepository(pool)
	verifier := service.NewChainVerifier(ledgerRepo)
	exporter := service.NewExportService(verifier, ledgerRepo, s3Client)

	result, err := exporter.Export(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to export chain: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Exported %d records to %s\n", result.RecordCount, result.Key)
		fmt.Printf("Tail: sequence %d, hash %s\n", result.TailSequence, result.TailRecordHash)
		if result.DownloadURL != "" {
			fmt.Printf("Download: %s\n", result.DownloadURL)
		}
	}

	return nil
}
