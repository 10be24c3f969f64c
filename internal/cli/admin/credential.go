package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/repository"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func resolveTenantID(ctx context.Context, tenantRepo *repository.TenantRepository, tenantRef string) (string, error) {
	if _, err := uuid.Parse(tenantRef); err == nil {
		tenant, err := tenantRepo.GetByID(ctx, tenantRef)
		if err != nil {
			return "", fmt.Errorf("tenant not found: %s", tenantRef)
		}
		return tenant.ID, nil
	}

	tenant, err := tenantRepo.GetByName(ctx, tenantRef)
	if err != nil {
		if err == domain.ErrTenantNotFound {
			return "", fmt.Errorf("tenant not found: %s", tenantRef)
		}
		return "", err
	}
	return tenant.ID, nil
}

func CredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage agent credentials",
		Long:  "Issue, list, and revoke agent credentials",
	}

	cmd.AddCommand(CredentialIssueCmd())
	cmd.AddCommand(CredentialListCmd())
	cmd.AddCommand(CredentialRevokeCmd())

	return cmd
}

func CredentialIssueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new agent credential",
		Long:  "Issue a new agent credential for a tenant with a sensitivity ceiling and optional profile allow-list",
		RunE:  runCredentialIssue,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("name", "n", "", "Credential name (required)")
	cmd.Flags().String("ceiling", "internal", "Maximum sensitivity tier (public, internal, confidential, restricted, privileged)")
	cmd.Flags().String("profiles", "", "Comma-separated profile allow-list")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runCredentialIssue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenantRef, _ := cmd.Flags().GetString("tenant")
	name, _ := cmd.Flags().GetString("name")
	ceiling, _ := cmd.Flags().GetString("ceiling")
	profilesFlag, _ := cmd.Flags().GetString("profiles")
	outputFormat, _ := cmd.Flags().GetString("output")

	if !domain.IsValidSensitivityTier(domain.SensitivityTier(ceiling)) {
		return fmt.Errorf("invalid sensitivity tier: %s", ceiling)
	}

	var profiles []string
	if profilesFlag != "" {
		for _, p := range strings.Split(profilesFlag, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				profiles = append(profiles, trimmed)
			}
		}
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	credRepo := repository.NewCredentialRepository(pool)
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, credRepo, uuidGen)

	tenantID, err := resolveTenantID(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	token, cred, err := authSvc.IssueCredential(ctx, service.IssueCredentialInput{
		TenantID:        tenantID,
		Name:            name,
		Ceiling:         domain.SensitivityTier(ceiling),
		AllowedProfiles: profiles,
	})
	if err != nil {
		return fmt.Errorf("failed to issue credential: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":       cred.ID,
			"name":     cred.Name,
			"tenant":   tenantID,
			"ceiling":  string(cred.Ceiling),
			"profiles": cred.AllowedProfiles,
			"token":    token,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Credential issued for tenant %s\n", tenantID)
		fmt.Printf("Credential ID: %s\n", cred.ID)
		fmt.Printf("Name: %s\n", cred.Name)
		fmt.Printf("Ceiling: %s\n", cred.Ceiling)
		if len(cred.AllowedProfiles) > 0 {
			fmt.Printf("Profiles: %s\n", strings.Join(cred.AllowedProfiles, ", "))
		}
		fmt.Printf("Token: %s\n", token)
		fmt.Println("\n⚠️  Save this token now. You won't be able to see it again!")
	}

	return nil
}

func CredentialListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List credentials for a tenant",
		Long:  "List all agent credentials for a specific tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantRef, _ := cmd.Flags().GetString("tenant")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runCredentialList(tenantRef, outputFormat)
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runCredentialList(tenantRef, outputFormat string) error {
	ctx := context.Background()

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	credRepo := repository.NewCredentialRepository(pool)

	tenantID, err := resolveTenantID(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	creds, err := credRepo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(creds))
		for i, cred := range creds {
			data[i] = map[string]interface{}{
				"id":         cred.ID,
				"name":       cred.Name,
				"tenant_id":  cred.TenantID,
				"ceiling":    string(cred.Ceiling),
				"profiles":   cred.AllowedProfiles,
				"created_at": cred.CreatedAt,
				"revoked_at": cred.RevokedAt,
				"revoked":    cred.IsRevoked(),
			}
		}
		jsonBytes, _ := json.MarshalIndent(map[string]interface{}{"items": data}, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(creds) == 0 {
			fmt.Printf("No credentials found for tenant %s\n", tenantID)
			return nil
		}
		fmt.Printf("Credentials for tenant %s:\n", tenantID)
		for _, cred := range creds {
			status := "active"
			if cred.IsRevoked() {
				status = "revoked"
			}
			fmt.Printf("  %s: %s (%s, ceiling: %s, created: %s)\n", cred.ID, cred.Name, status, cred.Ceiling, cred.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

func CredentialRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an agent credential",
		Long:  "Revoke an agent credential by its ID",
		Args:  cobra.ExactArgs(1),
		RunE:  runCredentialRevoke,
	}

	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

func runCredentialRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	credID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	credRepo := repository.NewCredentialRepository(pool)
	if err := credRepo.Revoke(ctx, credID); err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":      credID,
			"revoked": true,
			"message": "credential revoked successfully",
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Credential %s revoked successfully\n", credID)
	}

	return nil
}
