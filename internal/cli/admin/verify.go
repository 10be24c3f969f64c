package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civium-ai/custodia/internal/repository"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/spf13/cobra"
)

func VerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a tenant's audit chain",
		Long:  "Walk a tenant's audit chain and report the first sequence or hash discontinuity, if any",
		RunE:  runVerify,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenantRef, _ := cmd.Flags().GetString("tenant")
	outputFormat, _ := cmd.Flags().GetString("output")

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

	ledgerRepo := repository.NewLedgerRepository(pool)
	verifier := service.NewChainVerifier(ledgerRepo)

	report, err := verifier.Verify(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to verify chain: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"tenant_id":       tenantID,
			"valid":           report.Valid,
			"records_checked": report.RecordsChecked,
		}
		if report.BrokenAtSequence != nil {
			data["broken_at_sequence"] = *report.BrokenAtSequence
			data["reason"] = report.Reason
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if report.Valid {
			fmt.Printf("Chain valid: %d records checked\n", report.RecordsChecked)
		} else {
			fmt.Printf("Chain BROKEN at sequence %d: %s (%d records checked)\n",
				*report.BrokenAtSequence, report.Reason, report.RecordsChecked)
		}
	}

	if !report.Valid {
		return fmt.Errorf("audit chain failed verification")
	}
	return nil
}
