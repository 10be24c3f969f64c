package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civium-ai/custodia/internal/config"
	"github.com/civium-ai/custodia/internal/database"
	"github.com/civium-ai/custodia/internal/pagination"
	"github.com/civium-ai/custodia/internal/repository"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func TenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
		Long:  "Create and list tenants",
	}

	cmd.AddCommand(TenantCreateCmd())
	cmd.AddCommand(TenantListCmd())

	return cmd
}

func TenantCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new tenant",
		Long:  "Create a new tenant with the specified name",
		Args:  cobra.ExactArgs(1),
		RunE:  runTenantCreate,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, nil, uuidGen)

	tenant, err := authSvc.CreateTenant(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":         tenant.ID,
			"name":       tenant.Name,
			"created_at": tenant.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Tenant created: %s (%s)\n", tenant.Name, tenant.ID)
	}

	return nil
}

func TenantListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Long:  "List all tenants in the system",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runTenantList(outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runTenantList(outputFormat string, limit int, cursorStr string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)

	cursor, _ := pagination.DecodeCursor(cursorStr)
	result, err := tenantRepo.ListWithCursor(ctx, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(result.Items))
		for i, tenant := range result.Items {
			data[i] = map[string]interface{}{
				"id":         tenant.ID,
				"name":       tenant.Name,
				"created_at": tenant.CreatedAt,
			}
		}
		output := map[string]interface{}{
			"items":    data,
			"cursor":   result.NextCursor,
			"has_more": result.HasMore,
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(result.Items) == 0 {
			fmt.Println("No tenants found")
			return nil
		}
		fmt.Println("Tenants:")
		for _, tenant := range result.Items {
			fmt.Printf("  %s: %s (created: %s)\n", tenant.ID, tenant.Name, tenant.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if result.HasMore && result.NextCursor != "" {
			fmt.Printf("\nMore results available. Use --cursor %s\n", result.NextCursor)
		}
	}

	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return pool, nil
}
